package webhook

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/arkivo-id/wa-meter/internal/model"
	"github.com/arkivo-id/wa-meter/pkg/logger"
	"github.com/arkivo-id/wa-meter/pkg/utils"
)

// expectedObject is the only event envelope this service subscribes to.
const expectedObject = "whatsapp_business_account"

// Normalizer flattens the Cloud API's nested event structure into canonical
// metadata records. Malformed or partial entries are skipped per item; a bad
// message never aborts the rest of the batch.
type Normalizer struct {
	myPhone string // account owner's number, digits only
}

// NewNormalizer creates a normalizer for the configured owner phone.
func NewNormalizer(myPhone string) *Normalizer {
	return &Normalizer{myPhone: utils.DigitsOnly(myPhone)}
}

// Normalize fans out over every change in the event and produces zero or more
// canonical records. Message content is never read, only metadata.
func (n *Normalizer) Normalize(ctx context.Context, event *model.WebhookEvent) []model.MessageRecord {
	if event == nil || event.Object != expectedObject {
		return nil
	}

	var records []model.MessageRecord
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Value == nil {
				continue
			}
			switch change.Field {
			case model.FieldMessages:
				records = append(records, n.normalizeLiveMessages(ctx, change.Value)...)
			case model.FieldEchoes:
				records = append(records, n.normalizeEchoes(ctx, change.Value)...)
			case model.FieldHistory:
				records = append(records, n.normalizeHistory(ctx, change.Value)...)
			default:
				logger.FromContext(ctx).Debug("Ignoring unsupported change field",
					zap.String("field", change.Field))
			}
		}
	}
	return records
}

// displayNumber extracts the business display number, digits only.
func displayNumber(value *model.WebhookValue) string {
	if value.Metadata == nil {
		return ""
	}
	return utils.DigitsOnly(value.Metadata.DisplayPhoneNumber)
}

// isFromMe reports whether a sender phone belongs to the account owner,
// matched against either the configured number or the event's display number.
func (n *Normalizer) isFromMe(senderPhone, display string) bool {
	if senderPhone == "" {
		return false
	}
	return senderPhone == n.myPhone || (display != "" && senderPhone == display)
}

// normalizeLiveMessages handles the "messages" change field.
func (n *Normalizer) normalizeLiveMessages(ctx context.Context, value *model.WebhookValue) []model.MessageRecord {
	log := logger.FromContext(ctx)
	display := displayNumber(value)

	// wa_id -> profile name map from the accompanying contacts list
	names := make(map[string]string, len(value.Contacts))
	for _, c := range value.Contacts {
		if c.WaID != "" && c.Profile != nil && c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}

	records := make([]model.MessageRecord, 0, len(value.Messages))
	for _, msg := range value.Messages {
		senderPhone := utils.DigitsOnly(msg.From)
		if msg.ID == "" || senderPhone == "" {
			log.Debug("Skipping live message without id or sender phone")
			continue
		}
		ts, err := strconv.ParseInt(msg.Timestamp, 10, 64)
		if err != nil || ts <= 0 {
			log.Debug("Skipping live message with unparseable timestamp",
				zap.String("message_id", msg.ID),
				zap.String("timestamp", msg.Timestamp))
			continue
		}

		fromMe := n.isFromMe(senderPhone, display)
		rec := model.MessageRecord{
			MessageID:   msg.ID,
			Timestamp:   ts,
			SenderPhone: senderPhone,
			SenderName:  names[msg.From],
			MsgType:     msgTypeOrDefault(msg.Type),
			Source:      model.SourceWebhook,
		}
		if fromMe {
			// Chat is keyed by the counterpart; for an outgoing message that
			// is the destination, not the sender's own number.
			rec.Direction = model.DirectionOut
			rec.RecipientPhone = utils.DigitsOnly(msg.To)
			rec.ChatID = rec.RecipientPhone
		} else {
			rec.Direction = model.DirectionIn
			rec.RecipientPhone = display
			rec.ChatID = senderPhone
		}
		records = append(records, rec)
	}
	return records
}

// normalizeEchoes handles "smb_message_echoes": messages the owner sent
// through a companion app. Always outgoing, always named "Me".
func (n *Normalizer) normalizeEchoes(ctx context.Context, value *model.WebhookValue) []model.MessageRecord {
	log := logger.FromContext(ctx)
	display := displayNumber(value)

	senderPhone := display
	if senderPhone == "" {
		senderPhone = n.myPhone
	}

	records := make([]model.MessageRecord, 0, len(value.MessageEchoes))
	for _, echo := range value.MessageEchoes {
		if echo.ID == "" || senderPhone == "" {
			log.Debug("Skipping echo without id or own phone")
			continue
		}
		ts, err := strconv.ParseInt(echo.Timestamp, 10, 64)
		if err != nil || ts <= 0 {
			log.Debug("Skipping echo with unparseable timestamp", zap.String("message_id", echo.ID))
			continue
		}

		toPhone := utils.DigitsOnly(echo.To)
		records = append(records, model.MessageRecord{
			MessageID:      echo.ID,
			Timestamp:      ts,
			SenderPhone:    senderPhone,
			SenderName:     "Me",
			RecipientPhone: toPhone,
			Direction:      model.DirectionOut,
			ChatID:         toPhone,
			MsgType:        msgTypeOrDefault(echo.Type),
			Source:         model.SourceEcho,
		})
	}
	return records
}

// normalizeHistory handles the "history" change field: bulk replay of past
// messages during initial sync. No contacts payload is guaranteed, so no name
// resolution. Messages lacking a stable id get a deterministic synthesized
// one so repeated replays deduplicate.
func (n *Normalizer) normalizeHistory(ctx context.Context, value *model.WebhookValue) []model.MessageRecord {
	log := logger.FromContext(ctx)
	display := displayNumber(value)

	records := make([]model.MessageRecord, 0, len(value.Messages))
	for _, msg := range value.Messages {
		senderPhone := utils.DigitsOnly(msg.From)
		if senderPhone == "" {
			log.Debug("Skipping history message without sender phone")
			continue
		}
		ts, err := strconv.ParseInt(msg.Timestamp, 10, 64)
		if err != nil || ts <= 0 {
			log.Debug("Skipping history message with unparseable timestamp",
				zap.String("timestamp", msg.Timestamp))
			continue
		}

		id := msg.ID
		if id == "" {
			id = model.HistoryMessageID(ts, senderPhone)
		}

		fromMe := n.isFromMe(senderPhone, display)
		rec := model.MessageRecord{
			MessageID:   id,
			Timestamp:   ts,
			SenderPhone: senderPhone,
			MsgType:     msgTypeOrDefault(msg.Type),
			Source:      model.SourceHistory,
		}
		if fromMe {
			rec.Direction = model.DirectionOut
			rec.RecipientPhone = utils.DigitsOnly(msg.To)
			rec.ChatID = rec.RecipientPhone
		} else {
			rec.Direction = model.DirectionIn
			rec.RecipientPhone = display
			rec.ChatID = senderPhone
		}
		records = append(records, rec)
	}
	return records
}

func msgTypeOrDefault(t string) string {
	if t == "" {
		return model.DefaultMsgType
	}
	return t
}
