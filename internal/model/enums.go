package model

// IdentityKind tags which side of a room an identity sits on. It is
// decided once, when the identity token is verified, and threaded through
// every downstream call rather than re-derived by comparing ids.
type IdentityKind string

const (
	KindPatient IdentityKind = "patient"
	KindStaff   IdentityKind = "staff"
)

func (k IdentityKind) Valid() bool {
	return k == KindPatient || k == KindStaff
}

// Opposite returns the other side of the room.
func (k IdentityKind) Opposite() IdentityKind {
	if k == KindPatient {
		return KindStaff
	}
	return KindPatient
}
