package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/arkivo-id/wa-meter/internal/apperrors"
	"github.com/arkivo-id/wa-meter/internal/config"
	"github.com/arkivo-id/wa-meter/internal/importer"
	"github.com/arkivo-id/wa-meter/internal/model"
	"github.com/arkivo-id/wa-meter/internal/observer"
	"github.com/arkivo-id/wa-meter/internal/requestid"
	"github.com/arkivo-id/wa-meter/internal/storage"
	"github.com/arkivo-id/wa-meter/internal/validator"
	"github.com/arkivo-id/wa-meter/internal/webhook"
	"github.com/arkivo-id/wa-meter/pkg/logger"
)

// webhookTask is the unit of work handed to the ingest pool: the raw body
// bytes exactly as received plus the signature header, processed after the
// HTTP acknowledgment has already been written.
type webhookTask struct {
	rawBody   []byte
	signature string
}

// IngestService owns both ingestion paths (webhook push and transcript
// import) and the dashboard query passthroughs. Webhook events are processed
// asynchronously so acknowledgment never waits on validation or persistence.
type IngestService struct {
	store      storage.MetadataStore
	normalizer *webhook.Normalizer
	importer   *importer.Importer
	sig        *webhook.SignatureValidator
	setup      *SetupState
	pool       *ants.PoolWithFunc
	verifyTok  string
	baseLogger *zap.Logger
}

// NewIngestService wires the ingestion pipeline and starts its worker pool.
func NewIngestService(cfg *config.Config, store storage.MetadataStore, baseLogger *zap.Logger) (*IngestService, error) {
	s := &IngestService{
		store:      store,
		normalizer: webhook.NewNormalizer(cfg.WhatsApp.MyPhone),
		importer:   importer.New(),
		sig:        webhook.NewSignatureValidator(cfg.WhatsApp.AppSecret),
		setup:      NewSetupState(),
		verifyTok:  cfg.WhatsApp.VerifyToken,
		baseLogger: baseLogger.Named("ingest"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.Ingest.PoolSize, func(i interface{}) {
		task, ok := i.(webhookTask)
		if !ok {
			s.baseLogger.Error("Invalid task type received by ingest pool", zap.Any("data", i))
			return
		}
		s.processWebhookTask(task)
	},
		// Nonblocking: the submitter has already acknowledged the delivery
		// and must never park behind busy workers.
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(err interface{}) {
			s.baseLogger.Error("Panic recovered in ingest worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest worker pool: %w", err)
	}
	s.pool = pool

	if s.sig.Bypassed() {
		s.baseLogger.Warn("No app secret configured: webhook signature validation is DISABLED (development mode)")
	}

	return s, nil
}

// Setup exposes the setup-flow state for the HTTP layer.
func (s *IngestService) Setup() *SetupState {
	return s.setup
}

// VerifyHandshake answers the GET verification handshake and flips the
// verified flag on success.
func (s *IngestService) VerifyHandshake(mode, token, challenge string) (string, bool) {
	echo, ok := webhook.VerifySubscribe(mode, token, challenge, s.verifyTok)
	if ok {
		s.setup.MarkVerified()
		s.baseLogger.Info("Webhook verification handshake succeeded")
	} else {
		s.baseLogger.Warn("Webhook verification failed: token mismatch or bad mode")
	}
	return echo, ok
}

// SubmitWebhookEvent queues an already-acknowledged event delivery for
// processing. It never blocks: when every worker is busy the event is dropped
// and counted. Failures after this point are logged, never surfaced to the
// upstream sender.
func (s *IngestService) SubmitWebhookEvent(rawBody []byte, signature string) error {
	body := make([]byte, len(rawBody))
	copy(body, rawBody)
	if err := s.pool.Invoke(webhookTask{rawBody: body, signature: signature}); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			s.baseLogger.Warn("Ingest pool saturated, dropping webhook event")
			observer.IncEventsFailed(model.SourceWebhook, "pool_overload")
			return err
		}
		s.baseLogger.Error("Failed to submit webhook event to pool", zap.Error(err))
		observer.IncEventsFailed(model.SourceWebhook, "pool_submit")
		return err
	}
	return nil
}

// processWebhookTask runs on the ingest pool: validate the signature, parse,
// normalize and persist. Each event is processed to completion or dropped.
func (s *IngestService) processWebhookTask(task webhookTask) {
	ctx := requestid.WithRequestID(context.Background(), uuid.NewString())
	log := logger.FromContext(ctx)

	if !s.sig.Validate(task.rawBody, task.signature) {
		log.Warn("Invalid webhook signature, ignoring event")
		observer.IncEventsFailed(model.SourceWebhook, "bad_signature")
		return
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(task.rawBody, &event); err != nil {
		log.Warn("Failed to unmarshal webhook event", zap.Error(err))
		observer.IncEventsFailed(model.SourceWebhook, "unmarshal")
		return
	}

	observer.IncEventsReceived(model.SourceWebhook)

	records := s.normalizer.Normalize(ctx, &event)
	if len(records) == 0 {
		log.Debug("Webhook event produced no canonical records")
		return
	}
	s.setup.MarkFirstMessage()

	for i := range records {
		if err := validator.Validate(records[i]); err != nil {
			log.Warn("Skipping invalid canonical record",
				zap.String("message_id", records[i].MessageID),
				zap.Error(err))
			continue
		}
		if err := s.store.SaveRecord(ctx, records[i]); err != nil {
			// Already acknowledged upstream; log and keep going.
			log.Error("Failed to persist canonical record",
				zap.String("message_id", records[i].MessageID),
				zap.Error(err))
			observer.IncEventsFailed(records[i].Source, "storage")
		}
	}
}

// ImportTranscript parses an exported transcript and persists the surviving
// lines as one transactional batch. Returns the number of records handed to
// the store.
func (s *IngestService) ImportTranscript(ctx context.Context, text, chatLabel string) (int, error) {
	ctx = requestid.WithRequestID(ctx, uuid.NewString())
	log := logger.FromContext(ctx)

	records, skipped := s.importer.Parse(ctx, text, chatLabel)
	observer.IncImportLines("parsed", len(records))
	observer.IncImportLines("skipped", skipped)

	if len(records) == 0 {
		return 0, fmt.Errorf("%w: no messages parsed from transcript", apperrors.ErrBadRequest)
	}

	// Validate the batch; drop invalid lines individually, same as any other
	// malformed unit.
	errs := iter.Map(records, func(rec *model.MessageRecord) error {
		return validator.Validate(*rec)
	})
	valid := make([]model.MessageRecord, 0, len(records))
	for i := range records {
		if errs[i] != nil {
			log.Warn("Dropping invalid transcript record",
				zap.String("message_id", records[i].MessageID),
				zap.Error(errs[i]))
			continue
		}
		valid = append(valid, records[i])
	}
	if len(valid) == 0 {
		return 0, fmt.Errorf("%w: no valid messages parsed from transcript", apperrors.ErrBadRequest)
	}

	if err := s.store.BulkSaveRecords(ctx, valid); err != nil {
		observer.IncEventsFailed(model.SourceImport, "storage")
		return 0, err
	}

	observer.IncEventsReceived(model.SourceImport)
	return len(valid), nil
}

// QueryMessages passes a dashboard query through to the store.
func (s *IngestService) QueryMessages(ctx context.Context, filter model.MessageFilter) ([]model.MessageMetadata, error) {
	return s.store.QueryMessages(ctx, filter)
}

// ChatSummaries passes through to the store.
func (s *IngestService) ChatSummaries(ctx context.Context) ([]model.ChatSummary, error) {
	return s.store.ChatSummaries(ctx)
}

// ListContacts passes through to the store.
func (s *IngestService) ListContacts(ctx context.Context) ([]model.Contact, error) {
	return s.store.ListContacts(ctx)
}

// Stats passes through to the store.
func (s *IngestService) Stats(ctx context.Context) (*model.StoreStats, error) {
	return s.store.Stats(ctx)
}

// Stop drains and releases the ingest pool.
func (s *IngestService) Stop() {
	if s.pool != nil {
		s.pool.Release()
	}
	s.baseLogger.Info("Ingest worker pool stopped")
}
