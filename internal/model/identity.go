package model

// Identity is an authenticated actor, either a patient or a clinic staff
// account. It is produced by the external identity system and immutable for
// the lifetime of a session.
type Identity struct {
	ID   int64        `json:"id"`
	Kind IdentityKind `json:"kind"`
}
