package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/arkivo-id/wa-meter/internal/config"
	"github.com/arkivo-id/wa-meter/internal/model"
	"github.com/arkivo-id/wa-meter/internal/webhook"
	"github.com/arkivo-id/wa-meter/pkg/utils"
)

// Developer utility: posts signed sample webhook payloads and a sample
// transcript at a running instance, so the whole ingestion path can be
// exercised without a real Cloud API subscription.

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	baseURL := flag.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port), "Base URL of a running wa-meter instance")
	count := flag.Int("count", 5, "Number of live message events to send")
	withEcho := flag.Bool("echo", true, "Also send an outgoing echo event")
	withHistory := flag.Bool("history", true, "Also send a history-sync event")
	withImport := flag.Bool("import", true, "Also upload a sample transcript")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "WA Meter test event generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	sig := webhook.NewSignatureValidator(cfg.WhatsApp.AppSecret)
	myPhone := cfg.MyPhoneDigits()
	if myPhone == "" {
		myPhone = "15551234567"
	}

	client := &http.Client{Timeout: 10 * time.Second}

	for i := 0; i < *count; i++ {
		sender := gofakeit.Numerify("62############")
		event := liveMessageEvent(sender, gofakeit.Name(), myPhone)
		postEvent(client, *baseURL, sig, event)
	}
	if *withEcho {
		postEvent(client, *baseURL, sig, echoEvent(myPhone, gofakeit.Numerify("62############")))
	}
	if *withHistory {
		postEvent(client, *baseURL, sig, historyEvent(gofakeit.Numerify("62############"), myPhone))
	}
	if *withImport {
		uploadTranscript(client, *baseURL)
	}

	fmt.Println("Done. Check /api/stats for totals.")
}

func liveMessageEvent(sender, senderName, display string) *model.WebhookEvent {
	return &model.WebhookEvent{
		Object: "whatsapp_business_account",
		Entry: []model.WebhookEntry{{
			ID: gofakeit.UUID(),
			Changes: []model.WebhookChange{{
				Field: model.FieldMessages,
				Value: &model.WebhookValue{
					Metadata: &model.WebhookMetadata{DisplayPhoneNumber: display},
					Contacts: []model.WebhookContact{{
						WaID:    sender,
						Profile: &model.WebhookProfile{Name: senderName},
					}},
					Messages: []model.WebhookMessage{{
						ID:        "wamid." + gofakeit.LetterN(24),
						From:      sender,
						Timestamp: strconv.FormatInt(utils.Now().Unix(), 10),
						Type:      "text",
					}},
				},
			}},
		}},
	}
}

func echoEvent(display, to string) *model.WebhookEvent {
	return &model.WebhookEvent{
		Object: "whatsapp_business_account",
		Entry: []model.WebhookEntry{{
			Changes: []model.WebhookChange{{
				Field: model.FieldEchoes,
				Value: &model.WebhookValue{
					Metadata: &model.WebhookMetadata{DisplayPhoneNumber: display},
					MessageEchoes: []model.WebhookMessage{{
						ID:        "wamid." + gofakeit.LetterN(24),
						To:        to,
						Timestamp: strconv.FormatInt(utils.Now().Unix(), 10),
						Type:      "text",
					}},
				},
			}},
		}},
	}
}

func historyEvent(sender, display string) *model.WebhookEvent {
	return &model.WebhookEvent{
		Object: "whatsapp_business_account",
		Entry: []model.WebhookEntry{{
			Changes: []model.WebhookChange{{
				Field: model.FieldHistory,
				Value: &model.WebhookValue{
					Metadata: &model.WebhookMetadata{DisplayPhoneNumber: display},
					Messages: []model.WebhookMessage{{
						// no provider id: exercises the synthesized history id
						From:      sender,
						Timestamp: strconv.FormatInt(utils.Now().Add(-24*time.Hour).Unix(), 10),
						Type:      "text",
					}},
				},
			}},
		}},
	}
}

func postEvent(client *http.Client, baseURL string, sig *webhook.SignatureValidator, event *model.WebhookEvent) {
	body := utils.MustMarshalJSON(event)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/webhook", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("build request: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, sig.Sign(body))

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("post webhook: %v\n", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	fmt.Printf("webhook event -> %s\n", resp.Status)
}

func uploadTranscript(client *http.Client, baseURL string) {
	transcript := "13/05/2023, 10:00 - " + gofakeit.Name() + ": hello\n" +
		"13/05/2023, 10:01 - " + gofakeit.Name() + ": hi there\n" +
		"this line is continuation text\n"

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/import", bytes.NewBufferString(transcript))
	if err != nil {
		fmt.Printf("build request: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Chat-Name", "Tester Chat")

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("upload transcript: %v\n", err)
		return
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("transcript import -> %s %s\n", resp.Status, string(out))
}
