package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arkivo-id/wa-meter/pkg/utils"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string        `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool          `mapstructure:"postgresAutoMigrate"`
		FlushInterval       time.Duration `mapstructure:"flushInterval"` // background keepalive period
	} `mapstructure:"database"`
	WhatsApp struct {
		MyPhone     string `mapstructure:"myPhone"`     // the account owner's number, any formatting
		AppSecret   string `mapstructure:"appSecret"`   // HMAC secret for X-Hub-Signature-256
		VerifyToken string `mapstructure:"verifyToken"` // token echoed during webhook subscribe
	} `mapstructure:"whatsapp"`
	Ingest struct {
		PoolSize  int    `mapstructure:"poolSize"`  // webhook worker pool size
		ChatLabel string `mapstructure:"chatLabel"` // default label for transcript imports
	} `mapstructure:"ingest"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// MyPhoneDigits returns the configured owner phone normalized to digits only.
func (c *Config) MyPhoneDigits() string {
	return utils.DigitsOnly(c.WhatsApp.MyPhone)
}

// SignatureBypassed reports whether inbound events are accepted without a
// signature check, which happens when no app secret is configured.
func (c *Config) SignatureBypassed() bool {
	return c.WhatsApp.AppSecret == ""
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 3000)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("database.postgresAutoMigrate", true)
	v.SetDefault("database.flushInterval", 30*time.Second)
	v.SetDefault("ingest.poolSize", 4)
	v.SetDefault("ingest.chatLabel", "Imported Chat")

	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.wa-meter")
	v.AddConfigPath("/etc/wa-meter")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, env vars can cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if phone := os.Getenv("MY_PHONE_NUMBER"); phone != "" {
		v.Set("whatsapp.myPhone", phone)
	}
	if secret := os.Getenv("WHATSAPP_APP_SECRET"); secret != "" {
		v.Set("whatsapp.appSecret", secret)
	}
	if token := os.Getenv("WHATSAPP_VERIFY_TOKEN"); token != "" {
		v.Set("whatsapp.verifyToken", token)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
