package model

import (
	"time"
)

// Room is the unique two-party conversation between one patient and one
// staff-owning identity. Rooms are created lazily on first contact and never
// deleted (soft-archived at most).
type Room struct {
	ID                 int64      `db:"id" json:"id"`
	OwnerIdentityID    int64      `db:"owner_identity_id" json:"ownerIdentityId"`
	PatientIdentityID  int64      `db:"patient_identity_id" json:"patientIdentityId"`
	LastMessage        *string    `db:"last_message" json:"lastMessage,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"lastMessageAt,omitempty"`
	OwnerUnreadCount   int        `db:"owner_unread_count" json:"ownerUnreadCount"`
	PatientUnreadCount int        `db:"patient_unread_count" json:"patientUnreadCount"`
	ArchivedAt         *time.Time `db:"archived_at" json:"archivedAt,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
}

// Participant reports whether the identity is one of the room's two sides.
func (r *Room) Participant(identityID int64) bool {
	return identityID == r.OwnerIdentityID || identityID == r.PatientIdentityID
}

// CounterpartID returns the other participant's identity id.
func (r *Room) CounterpartID(identityID int64) int64 {
	if identityID == r.OwnerIdentityID {
		return r.PatientIdentityID
	}
	return r.OwnerIdentityID
}

// UnreadFor returns the unread counter belonging to the given side.
func (r *Room) UnreadFor(kind IdentityKind) int {
	if kind == KindPatient {
		return r.PatientUnreadCount
	}
	return r.OwnerUnreadCount
}

// RoomSummary is a room joined with counterpart display data for listings.
type RoomSummary struct {
	Room
	CounterpartName   string `json:"counterpartName"`
	CounterpartOnline bool   `json:"counterpartOnline"`
	UnreadCount       int    `json:"unreadCount"`
}
