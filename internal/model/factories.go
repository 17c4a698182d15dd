package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/arkivo-id/wa-meter/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewMessageRecord creates a MessageRecord with default fake data, used by tests.
func NewMessageRecord(overrideDefaults ...*MessageRecord) *MessageRecord {
	base := &MessageRecord{
		MessageID:   "wamid." + gofakeit.LetterN(24),
		Timestamp:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 720)) * time.Hour).Unix(),
		SenderPhone: gofakeit.Numerify("62############"),
		SenderName:  gofakeit.Name(),
		Direction:   gofakeit.RandomString([]string{DirectionIn, DirectionOut}),
		MsgType:     gofakeit.RandomString([]string{"text", "image", "audio"}),
		Source:      SourceWebhook,
	}
	base.ChatID = base.SenderPhone

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.MessageID != "" {
			base.MessageID = ovr.MessageID
		}
		if ovr.Timestamp != 0 {
			base.Timestamp = ovr.Timestamp
		}
		if ovr.SenderPhone != "" {
			base.SenderPhone = ovr.SenderPhone
		}
		if ovr.SenderName != "" {
			base.SenderName = ovr.SenderName
		}
		if ovr.RecipientPhone != "" {
			base.RecipientPhone = ovr.RecipientPhone
		}
		if ovr.Direction != "" {
			base.Direction = ovr.Direction
		}
		if ovr.ChatID != "" {
			base.ChatID = ovr.ChatID
		}
		if ovr.MsgType != "" {
			base.MsgType = ovr.MsgType
		}
		if ovr.Source != "" {
			base.Source = ovr.Source
		}
	}
	return base
}

// NewContact creates a Contact with default fake data, used by tests.
func NewContact(overrideDefaults ...*Contact) *Contact {
	base := &Contact{
		Phone:     gofakeit.Numerify("62############"),
		Name:      gofakeit.Name(),
		UpdatedAt: utils.Now().Unix(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.Phone != "" {
			base.Phone = ovr.Phone
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.UpdatedAt != 0 {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}
