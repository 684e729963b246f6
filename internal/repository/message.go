package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/carelink/clinic-chat-go/internal/database"
	"github.com/carelink/clinic-chat-go/internal/model"
)

// ErrRoomMissing is returned by Append when the target room row is gone.
var ErrRoomMissing = errors.New("room does not exist")

// MessageRepository persists the per-room append log.
//
//	messages(room_id BIGINT, seq BIGINT, sender_identity_id BIGINT,
//	         sender_kind TEXT, content TEXT NULL, attachment_ref TEXT NULL,
//	         is_read BOOL DEFAULT FALSE, created_at TIMESTAMPTZ DEFAULT NOW(),
//	         PRIMARY KEY(room_id, seq))
type MessageRepository interface {
	Append(ctx context.Context, params model.AppendMessageParams) (*model.Message, error)
	History(ctx context.Context, roomID int64, page, limit int) ([]model.Message, error)
	MarkRead(ctx context.Context, roomID int64, readerKind model.IdentityKind) error
}

type messageRepo struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) MessageRepository {
	return &messageRepo{db: db}
}

// Append inserts the message and applies the room-summary update as one
// transaction. The room row is locked first, which both serializes seq
// assignment (monotonic and gapless per room) and makes the counter
// increment safe against a concurrent append on the same room.
func (r *messageRepo) Append(ctx context.Context, params model.AppendMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var roomID int64
		err := tx.GetContext(ctx, &roomID, `
			SELECT id FROM rooms WHERE id = $1 FOR UPDATE
		`, params.RoomID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomMissing
		}
		if err != nil {
			return err
		}

		err = tx.GetContext(ctx, &msg, `
			INSERT INTO messages
				(room_id, seq, sender_identity_id, sender_kind, content, attachment_ref)
			SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5
			FROM messages WHERE room_id = $1
			RETURNING *
		`, params.RoomID, params.SenderIdentityID, params.SenderKind,
			params.Content, params.AttachmentRef)
		if err != nil {
			return err
		}

		// The sender's own counter is untouched; only the opposite side's
		// unread count moves.
		unreadColumn := "patient_unread_count"
		if params.SenderKind == model.KindPatient {
			unreadColumn = "owner_unread_count"
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rooms SET
				last_message = $2,
				last_message_at = $3,
				`+unreadColumn+` = `+unreadColumn+` + 1
			WHERE id = $1
		`, params.RoomID, msg.Preview(), msg.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns one newest-first page. It is a pure read: nothing is
// marked read here, the read flip is its own operation.
func (r *messageRepo) History(ctx context.Context, roomID int64, page, limit int) ([]model.Message, error) {
	if page < 1 {
		page = 1
	}
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, roomID, limit, (page-1)*limit)
	return msgs, err
}

// MarkRead flips every unread message sent by the opposite side and resets
// the reader side's counter, in one transaction. Calling it again with
// nothing new to read is a no-op.
func (r *messageRepo) MarkRead(ctx context.Context, roomID int64, readerKind model.IdentityKind) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE messages SET is_read = TRUE
			WHERE room_id = $1 AND sender_kind = $2 AND is_read = FALSE
		`, roomID, readerKind.Opposite())
		if err != nil {
			return err
		}

		unreadColumn := "patient_unread_count"
		if readerKind == model.KindStaff {
			unreadColumn = "owner_unread_count"
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rooms SET `+unreadColumn+` = 0 WHERE id = $1
		`, roomID)
		return err
	})
}
