package storage

import (
	"context"

	"github.com/arkivo-id/wa-meter/internal/model"
)

// MetadataStore is the single point of durability and deduplication for
// canonical message records. Both the webhook normalizer and the transcript
// importer hand their output here; the store alone decides persist-or-skip.
type MetadataStore interface {
	// SaveRecord upserts the sender contact when a name is present, then
	// inserts the record unless its message ID already exists (no-op then,
	// not an error). Durable before returning.
	SaveRecord(ctx context.Context, rec model.MessageRecord) error
	// BulkSaveRecords applies the SaveRecord logic to every record inside a
	// single transaction. Unexpected database errors roll back the whole
	// batch; in-batch duplicate IDs are skipped individually.
	BulkSaveRecords(ctx context.Context, recs []model.MessageRecord) error

	QueryMessages(ctx context.Context, filter model.MessageFilter) ([]model.MessageMetadata, error)
	ChatSummaries(ctx context.Context) ([]model.ChatSummary, error)
	ListContacts(ctx context.Context) ([]model.Contact, error)
	Stats(ctx context.Context) (*model.StoreStats, error)

	Close(ctx context.Context) error
}
