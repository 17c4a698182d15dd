package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arkivo-id/wa-meter/internal/model"
	"github.com/arkivo-id/wa-meter/internal/observer"
	"github.com/arkivo-id/wa-meter/pkg/logger"
	"github.com/arkivo-id/wa-meter/pkg/utils"
)

// SaveRecord stores a single canonical record. The sender contact is upserted
// first when the record carries a display name; the record insert itself is a
// no-op when the message ID is already present.
func (r *PostgresRepo) SaveRecord(ctx context.Context, rec model.MessageRecord) error {
	if rec.MsgType == "" {
		rec.MsgType = model.DefaultMsgType
	}

	var inserted bool
	operation := func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := upsertContactTx(tx, rec); err != nil {
				return err
			}

			// Insert-or-skip keyed on message_id
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "message_id"}},
				DoNothing: true,
			}).Create(&rec)
			if result.Error != nil {
				return checkConstraintViolation(result.Error)
			}
			inserted = result.RowsAffected > 0
			return nil
		})
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveRecord Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save record after retries",
			zap.String("message_id", rec.MessageID),
			zap.Error(commitErr))
		return commitErr
	}

	if inserted {
		observer.IncRecordsInserted(rec.Source)
	} else {
		observer.IncRecordsDuplicate(rec.Source)
		logger.FromContext(ctx).Debug("Duplicate message ID skipped",
			zap.String("message_id", rec.MessageID))
	}

	return nil
}

// BulkSaveRecords applies the per-record save logic inside one transaction.
// Any unexpected database error aborts and rolls back the whole batch;
// duplicate message IDs (in the store or within the batch) are skipped
// individually without aborting.
func (r *PostgresRepo) BulkSaveRecords(ctx context.Context, recs []model.MessageRecord) error {
	if len(recs) == 0 {
		return nil
	}

	var inserted, skipped int64
	operation := func() error {
		inserted, skipped = 0, 0
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range recs {
				if recs[i].MsgType == "" {
					recs[i].MsgType = model.DefaultMsgType
				}
				if err := upsertContactTx(tx, recs[i]); err != nil {
					return err
				}
				result := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "message_id"}},
					DoNothing: true,
				}).Create(&recs[i])
				if result.Error != nil {
					return checkConstraintViolation(result.Error)
				}
				if result.RowsAffected > 0 {
					inserted++
				} else {
					skipped++
				}
			}
			return nil
		})
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BulkSaveRecords Commit", operation)
	observer.ObserveDbOperationDuration("bulk_insert", "message", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to bulk save records after retries",
			zap.Int("batch_size", len(recs)),
			zap.Error(commitErr))
		return commitErr
	}

	logger.FromContext(ctx).Info("Bulk save completed",
		zap.Int("batch_size", len(recs)),
		zap.Int64("inserted", inserted),
		zap.Int64("duplicates_skipped", skipped))

	return nil
}

// QueryMessages returns message metadata matching the filter, ordered by
// ascending timestamp. Sender names are resolved against the contact cache
// when the record lacks one, falling back to the raw phone.
func (r *PostgresRepo) QueryMessages(ctx context.Context, filter model.MessageFilter) ([]model.MessageMetadata, error) {
	var rows []model.MessageMetadata

	operation := func() error {
		q := r.db.WithContext(ctx).
			Table("messages AS m").
			Select("m.message_id, m.timestamp, m.sender_phone, " +
				"COALESCE(NULLIF(m.sender_name, ''), c.name, m.sender_phone) AS sender_name, " +
				"m.recipient_phone, m.direction, m.chat_id, m.msg_type, m.source").
			Joins("LEFT JOIN contacts c ON m.sender_phone = c.phone")

		if filter.From > 0 {
			q = q.Where("m.timestamp >= ?", filter.From)
		}
		if filter.To > 0 {
			q = q.Where("m.timestamp <= ?", filter.To)
		}
		if filter.ChatID != "" {
			q = q.Where("m.chat_id = ?", filter.ChatID)
		}

		if err := q.Order("m.timestamp ASC").Scan(&rows).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "QueryMessages", operation)
	observer.ObserveDbOperationDuration("query", "message", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to query messages after retries", zap.Error(findErr))
		return nil, findErr
	}

	return rows, nil
}

// ChatSummaries groups records by chat, busiest conversations first.
func (r *PostgresRepo) ChatSummaries(ctx context.Context) ([]model.ChatSummary, error) {
	var rows []model.ChatSummary

	operation := func() error {
		err := r.db.WithContext(ctx).
			Table("messages").
			Select("chat_id, COUNT(*) AS msg_count, MIN(timestamp) AS first_msg, MAX(timestamp) AS last_msg").
			Where("chat_id <> ''").
			Group("chat_id").
			Order("msg_count DESC").
			Scan(&rows).Error
		if err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ChatSummaries", operation)
	observer.ObserveDbOperationDuration("query", "chat_summary", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to query chat summaries after retries", zap.Error(findErr))
		return nil, findErr
	}

	return rows, nil
}

// Stats returns aggregate counts and the overall timestamp range.
func (r *PostgresRepo) Stats(ctx context.Context) (*model.StoreStats, error) {
	var stats model.StoreStats

	operation := func() error {
		db := r.db.WithContext(ctx)

		if err := db.Table("messages").Count(&stats.TotalMessages).Error; err != nil {
			return checkConstraintViolation(err)
		}
		if err := db.Table("messages").Where("chat_id <> ''").
			Distinct("chat_id").Count(&stats.TotalChats).Error; err != nil {
			return checkConstraintViolation(err)
		}
		if err := db.Table("contacts").Count(&stats.TotalContacts).Error; err != nil {
			return checkConstraintViolation(err)
		}

		var tsRange struct {
			Earliest int64
			Latest   int64
		}
		err := db.Table("messages").
			Select("COALESCE(MIN(timestamp), 0) AS earliest, COALESCE(MAX(timestamp), 0) AS latest").
			Scan(&tsRange).Error
		if err != nil {
			return checkConstraintViolation(err)
		}
		stats.Earliest = tsRange.Earliest
		stats.Latest = tsRange.Latest
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "Stats", operation)
	observer.ObserveDbOperationDuration("query", "stats", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to query store stats after retries", zap.Error(findErr))
		return nil, findErr
	}

	return &stats, nil
}
