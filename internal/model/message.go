package model

import (
	"encoding/json"
	"time"
)

// Message is an immutable chat record. Seq is assigned at append time and is
// monotonic and gapless within a room; it is the authoritative ordering key.
// Exactly one of Content/AttachmentRef is non-nil. The only mutation ever
// applied is the read-receipt flip of IsRead from false to true.
type Message struct {
	RoomID           int64        `db:"room_id" json:"roomId"`
	Seq              int64        `db:"seq" json:"seq"`
	SenderIdentityID int64        `db:"sender_identity_id" json:"senderIdentityId"`
	SenderKind       IdentityKind `db:"sender_kind" json:"senderKind"`
	Content          *string      `db:"content" json:"content,omitempty"`
	AttachmentRef    *string      `db:"attachment_ref" json:"attachmentRef,omitempty"`
	IsRead           bool         `db:"is_read" json:"isRead"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
}

// Preview is the short text stored on the room as last_message.
func (m *Message) Preview() string {
	if m.Content != nil {
		return *m.Content
	}
	return "[attachment]"
}

// ToEventData returns the JSON payload carried by a new_message event.
func (m *Message) ToEventData() json.RawMessage {
	data, _ := json.Marshal(m)
	return data
}

type AppendMessageParams struct {
	RoomID           int64
	SenderIdentityID int64
	SenderKind       IdentityKind
	Content          *string
	AttachmentRef    *string
}
