package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/carelink/clinic-chat-go/internal/model"
)

// RoomRepository persists room rows.
//
//	rooms(id BIGSERIAL PK, owner_identity_id BIGINT, patient_identity_id BIGINT,
//	      last_message TEXT NULL, last_message_at TIMESTAMPTZ NULL,
//	      owner_unread_count INT DEFAULT 0, patient_unread_count INT DEFAULT 0,
//	      archived_at TIMESTAMPTZ NULL, created_at TIMESTAMPTZ DEFAULT NOW(),
//	      UNIQUE(owner_identity_id, patient_identity_id))
//
// The unread counters and last_message* columns are written only by the
// message repository's atomic operations, never here.
type RoomRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Room, error)
	FindByOwner(ctx context.Context, ownerIdentityID int64) ([]model.Room, error)
	FindByPatient(ctx context.Context, patientIdentityID int64) ([]model.Room, error)
	GetOrCreate(ctx context.Context, ownerIdentityID, patientIdentityID int64) (*model.Room, error)
	Archive(ctx context.Context, id int64) error
}

type roomRepo struct {
	db *sqlx.DB
}

func NewRoomRepository(db *sqlx.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) FindByID(ctx context.Context, id int64) (*model.Room, error) {
	var room model.Room
	err := r.db.GetContext(ctx, &room, `
		SELECT * FROM rooms WHERE id = $1
	`, id)
	return HandleNotFound(&room, err)
}

func (r *roomRepo) FindByOwner(ctx context.Context, ownerIdentityID int64) ([]model.Room, error) {
	var rooms []model.Room
	err := r.db.SelectContext(ctx, &rooms, `
		SELECT * FROM rooms
		WHERE owner_identity_id = $1 AND archived_at IS NULL
		ORDER BY last_message_at DESC NULLS LAST, id DESC
	`, ownerIdentityID)
	return rooms, err
}

func (r *roomRepo) FindByPatient(ctx context.Context, patientIdentityID int64) ([]model.Room, error) {
	var rooms []model.Room
	err := r.db.SelectContext(ctx, &rooms, `
		SELECT * FROM rooms
		WHERE patient_identity_id = $1 AND archived_at IS NULL
		ORDER BY last_message_at DESC NULLS LAST, id DESC
	`, patientIdentityID)
	return rooms, err
}

// GetOrCreate is insert-or-fetch in a single statement. The no-op DO UPDATE
// makes RETURNING yield the existing row, so two concurrent calls for the
// same pair converge on one row without an insert-then-catch dance.
func (r *roomRepo) GetOrCreate(ctx context.Context, ownerIdentityID, patientIdentityID int64) (*model.Room, error) {
	var room model.Room
	err := r.db.GetContext(ctx, &room, `
		INSERT INTO rooms (owner_identity_id, patient_identity_id)
		VALUES ($1, $2)
		ON CONFLICT (owner_identity_id, patient_identity_id) DO UPDATE SET
			owner_identity_id = EXCLUDED.owner_identity_id
		RETURNING *
	`, ownerIdentityID, patientIdentityID)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) Archive(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET archived_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`, id)
	return err
}
