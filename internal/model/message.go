package model

import (
	"fmt"
	"time"

	"gorm.io/gorm/schema"
)

// Message direction relative to the account owner.
const (
	DirectionIn      = "in"
	DirectionOut     = "out"
	DirectionUnknown = "unknown" // import-sourced records without device context
)

// Record provenance.
const (
	SourceWebhook = "webhook"
	SourceEcho    = "echo"
	SourceHistory = "history"
	SourceImport  = "import"
)

// DefaultMsgType is assumed when the upstream event omits a content type.
const DefaultMsgType = "text"

// MessageRecord is the canonical privacy-preserving metadata unit. There is
// deliberately no column for message content anywhere in this schema.
type MessageRecord struct {
	ID             int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageID      string    `json:"id" gorm:"column:message_id;uniqueIndex" validate:"required"`
	Timestamp      int64     `json:"timestamp" gorm:"column:timestamp;index" validate:"required,gt=0"`
	SenderPhone    string    `json:"sender_phone" gorm:"column:sender_phone;index" validate:"required"`
	SenderName     string    `json:"sender_name,omitempty" gorm:"column:sender_name"`
	RecipientPhone string    `json:"recipient_phone,omitempty" gorm:"column:recipient_phone"`
	Direction      string    `json:"direction" gorm:"column:direction;index" validate:"required,oneof=in out unknown"`
	ChatID         string    `json:"chat_id,omitempty" gorm:"column:chat_id;index"`
	MsgType        string    `json:"msg_type,omitempty" gorm:"column:msg_type;default:text"`
	Source         string    `json:"source,omitempty" gorm:"column:source" validate:"required,oneof=webhook echo history import"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (MessageRecord) TableName(namer schema.Namer) string {
	return namer.TableName("messages")
}

// HistoryMessageID builds the deterministic fallback ID for history-sync
// messages that arrive without a provider-assigned one. Deterministic so that
// repeated replays of the same event deduplicate. Two distinct messages from
// the same sender in the same second would collide; accepted approximation.
func HistoryMessageID(timestamp int64, senderPhone string) string {
	return fmt.Sprintf("hist_%d_%s", timestamp, senderPhone)
}

// ImportMessageID builds the synthesized ID for a transcript-imported line.
// The per-file sequence counter keeps same-second messages distinct.
func ImportMessageID(chatLabel string, timestamp int64, seq int) string {
	return fmt.Sprintf("import_%s_%d_%d", chatLabel, timestamp, seq)
}
