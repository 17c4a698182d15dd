package model

// --- Webhook event payload --- //
// The upstream schema is not contractually stable: every nested field is
// optional and parsed field-by-field, skipping items that lack required data.

// WebhookEvent is the top-level payload delivered by the Cloud API.
type WebhookEvent struct {
	Object string         `json:"object,omitempty"`
	Entry  []WebhookEntry `json:"entry,omitempty"`
}

// WebhookEntry groups the changes for one subscribed account.
type WebhookEntry struct {
	ID      string          `json:"id,omitempty"`
	Changes []WebhookChange `json:"changes,omitempty"`
}

// Change field discriminators.
const (
	FieldMessages = "messages"
	FieldEchoes   = "smb_message_echoes"
	FieldHistory  = "history"
)

// WebhookChange carries one category of events, discriminated by Field.
type WebhookChange struct {
	Field string        `json:"field,omitempty"`
	Value *WebhookValue `json:"value,omitempty"`
}

// WebhookValue is the per-change payload.
type WebhookValue struct {
	Metadata      *WebhookMetadata `json:"metadata,omitempty"`
	Contacts      []WebhookContact `json:"contacts,omitempty"`
	Messages      []WebhookMessage `json:"messages,omitempty"`
	MessageEchoes []WebhookMessage `json:"message_echoes,omitempty"`
}

// WebhookMetadata identifies the receiving business number.
type WebhookMetadata struct {
	PhoneNumberID      string `json:"phone_number_id,omitempty"`
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
}

// WebhookContact carries the sender's profile for live messages.
type WebhookContact struct {
	WaID    string          `json:"wa_id,omitempty"`
	Profile *WebhookProfile `json:"profile,omitempty"`
}

// WebhookProfile holds the display name.
type WebhookProfile struct {
	Name string `json:"name,omitempty"`
}

// WebhookMessage is a single message event. Live messages populate From;
// echoes populate To. Timestamp arrives as a decimal string.
type WebhookMessage struct {
	ID        string `json:"id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Type      string `json:"type,omitempty"`
}

// --- Dashboard query surface --- //

// MessageFilter narrows a metadata query. Zero values mean "no constraint".
type MessageFilter struct {
	From   int64  // inclusive lower timestamp bound
	To     int64  // inclusive upper timestamp bound
	ChatID string // restrict to one conversation
}

// MessageMetadata is one row of the dashboard message list. SenderName is
// resolved against the contact cache when the record itself lacks one.
type MessageMetadata struct {
	MessageID      string `json:"id"`
	Timestamp      int64  `json:"timestamp"`
	SenderPhone    string `json:"sender_phone"`
	SenderName     string `json:"sender_name"`
	RecipientPhone string `json:"recipient_phone,omitempty"`
	Direction      string `json:"direction"`
	ChatID         string `json:"chat_id,omitempty"`
	MsgType        string `json:"msg_type"`
	Source         string `json:"source"`
}

// ChatSummary aggregates one conversation.
type ChatSummary struct {
	ChatID   string `json:"chat_id"`
	MsgCount int64  `json:"msg_count"`
	FirstMsg int64  `json:"first_msg"`
	LastMsg  int64  `json:"last_msg"`
}

// StoreStats is the aggregate view over the whole store.
type StoreStats struct {
	TotalMessages int64 `json:"totalMessages"`
	TotalChats    int64 `json:"totalChats"`
	TotalContacts int64 `json:"totalContacts"`
	Earliest      int64 `json:"earliest,omitempty"`
	Latest        int64 `json:"latest,omitempty"`
}
