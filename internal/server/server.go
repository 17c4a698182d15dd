package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arkivo-id/wa-meter/internal/apperrors"
	"github.com/arkivo-id/wa-meter/internal/config"
	"github.com/arkivo-id/wa-meter/internal/model"
	"github.com/arkivo-id/wa-meter/internal/usecase"
	"github.com/arkivo-id/wa-meter/internal/webhook"
)

// maxImportBody caps transcript uploads at 50 MB.
const maxImportBody = 50 << 20

// chatNameHeader carries the conversation label for transcript uploads.
const chatNameHeader = "X-Chat-Name"

// Server exposes the webhook endpoints and the dashboard query surface.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	service    *usecase.IngestService
	cfg        *config.Config
	logger     *zap.Logger
}

// NewServer builds the gin router. Metrics are registered only when enabled.
func NewServer(cfg *config.Config, service *usecase.IngestService, logger *zap.Logger) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		service: service,
		cfg:     cfg,
		logger:  logger.Named("http"),
		httpServer: &http.Server{
			Addr:    ":" + strconv.Itoa(cfg.Server.Port),
			Handler: engine,
		},
	}

	engine.GET("/webhook", s.handleVerify)
	engine.POST("/webhook", s.handleWebhook)

	api := engine.Group("/api")
	{
		api.POST("/import", s.handleImport)
		api.GET("/messages", s.handleMessages)
		api.GET("/chats", s.handleChats)
		api.GET("/contacts", s.handleContacts)
		api.GET("/stats", s.handleStats)
		api.GET("/webhook-status", s.handleWebhookStatus)
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/ready", s.handleReady)
	if cfg.Metrics.Enabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleVerify answers the provider's GET verification handshake.
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if echo, ok := s.service.VerifyHandshake(mode, token, challenge); ok {
		c.String(http.StatusOK, echo)
		return
	}
	c.Status(http.StatusForbidden)
}

// handleWebhook acknowledges the delivery immediately, then hands the raw
// body to the ingest pool. Slow local processing must never trigger upstream
// retries, so validation and persistence happen after the 200.
func (s *Server) handleWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.logger.Warn("Failed to read webhook body", zap.Error(err))
		c.Status(http.StatusOK) // acknowledge anyway, nothing to process
		return
	}

	// Flush the 200 now; gin only records the status until the handler
	// returns.
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	signature := c.GetHeader(webhook.SignatureHeader)
	if err := s.service.SubmitWebhookEvent(rawBody, signature); err != nil {
		// Already acknowledged; the event is dropped and logged.
		s.logger.Error("Webhook event dropped", zap.Error(err))
	}
}

// handleImport ingests a raw .txt transcript export.
func (s *Server) handleImport(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	chatLabel := c.GetHeader(chatNameHeader)
	if chatLabel == "" {
		chatLabel = s.cfg.Ingest.ChatLabel
	}

	imported, err := s.service.ImportTranscript(c.Request.Context(), string(body), chatLabel)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": imported, "chat": chatLabel})
}

// handleMessages serves the filtered dashboard message list. Only metadata,
// never message content.
func (s *Server) handleMessages(c *gin.Context) {
	var filter model.MessageFilter
	if v := c.Query("from"); v != "" {
		filter.From, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := c.Query("to"); v != "" {
		filter.To, _ = strconv.ParseInt(v, 10, 64)
	}
	filter.ChatID = c.Query("chat")

	messages, err := s.service.QueryMessages(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	type messageView struct {
		Timestamp int64  `json:"timestamp"`
		Sender    string `json:"sender"`
		Chat      string `json:"chat,omitempty"`
		Direction string `json:"direction"`
	}
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		sender := m.SenderName
		if m.Direction == model.DirectionOut {
			sender = "Me"
		}
		views = append(views, messageView{
			Timestamp: m.Timestamp,
			Sender:    sender,
			Chat:      m.ChatID,
			Direction: m.Direction,
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": views, "myPhone": s.cfg.MyPhoneDigits()})
}

func (s *Server) handleChats(c *gin.Context) {
	chats, err := s.service.ChatSummaries(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (s *Server) handleContacts(c *gin.Context) {
	contacts, err := s.service.ListContacts(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contacts)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.service.Stats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleWebhookStatus reports the setup-flow progress flags.
func (s *Server) handleWebhookStatus(c *gin.Context) {
	verified, firstMessage := s.service.Setup().Snapshot()
	c.JSON(http.StatusOK, gin.H{"verified": verified, "firstMessage": firstMessage})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (s *Server) handleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "READY"})
}

// respondError maps application errors to HTTP status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case apperrors.IsBadRequestError(err) || apperrors.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsUnauthorizedError(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
