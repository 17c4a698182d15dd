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

// upsertContactTx refreshes the contact cache inside an existing transaction.
// Last write wins; records without both a phone and a name leave the cache
// untouched.
func upsertContactTx(tx *gorm.DB, rec model.MessageRecord) error {
	if rec.SenderPhone == "" || rec.SenderName == "" {
		return nil
	}

	contact := model.Contact{
		Phone:     rec.SenderPhone,
		Name:      rec.SenderName,
		UpdatedAt: utils.Now().Unix(),
	}
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns(model.ContactUpdateColumns()),
	}).Create(&contact)
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	return nil
}

// ListContacts returns all known contacts ordered by name.
func (r *PostgresRepo) ListContacts(ctx context.Context) ([]model.Contact, error) {
	var contacts []model.Contact

	operation := func() error {
		err := r.db.WithContext(ctx).
			Model(&model.Contact{}).
			Order("name ASC").
			Find(&contacts).Error
		if err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListContacts", operation)
	observer.ObserveDbOperationDuration("query", "contact", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list contacts after retries", zap.Error(findErr))
		return nil, findErr
	}

	return contacts, nil
}
