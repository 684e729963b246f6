package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/carelink/clinic-chat-go/internal/chat"
	apperrors "github.com/carelink/clinic-chat-go/internal/errors"
	"github.com/carelink/clinic-chat-go/internal/model"
	"github.com/carelink/clinic-chat-go/internal/repository"
)

type SendMessageParams struct {
	RoomID          int64
	Content         *string
	AttachmentRef   *string
	OriginSessionID string
}

type MessageService struct {
	messageRepo repository.MessageRepository
	rooms       *RoomService
	hub         *chat.Hub
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	rooms *RoomService,
	hub *chat.Hub,
) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		rooms:       rooms,
		hub:         hub,
	}
}

// Send validates, re-authorizes, appends durably and only then fans the
// message out. The originating session is skipped in the fan-out because it
// receives the message in its ack.
func (s *MessageService) Send(ctx context.Context, sender model.Identity, params SendMessageParams) (*model.Message, error) {
	content := normalize(params.Content)
	attachment := normalize(params.AttachmentRef)

	if (content == nil) == (attachment == nil) {
		return nil, apperrors.ValidationError("Exactly one of content and attachmentRef must be set")
	}

	if _, err := s.rooms.Authorize(ctx, sender, params.RoomID); err != nil {
		return nil, err
	}

	msg, err := s.messageRepo.Append(ctx, model.AppendMessageParams{
		RoomID:           params.RoomID,
		SenderIdentityID: sender.ID,
		SenderKind:       sender.Kind,
		Content:          content,
		AttachmentRef:    attachment,
	})
	if errors.Is(err, repository.ErrRoomMissing) {
		return nil, apperrors.NotFound("Room")
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Int64("roomId", msg.RoomID).
		Int64("seq", msg.Seq).
		Int64("senderIdentityId", sender.ID).
		Str("senderKind", string(sender.Kind)).
		Msg("message appended")

	s.hub.EmitToRoom(ctx, params.RoomID, chat.NewMessageEvent(msg), params.OriginSessionID)

	return msg, nil
}

// MarkRead flips the unread state for everything the other side has sent
// and tells their live sessions about it. The read-receipt notification is
// informational: not persisted, not retried.
func (s *MessageService) MarkRead(ctx context.Context, reader model.Identity, roomID int64, originSessionID string) error {
	if _, err := s.rooms.Authorize(ctx, reader, roomID); err != nil {
		return err
	}

	if err := s.messageRepo.MarkRead(ctx, roomID, reader.Kind); err != nil {
		return apperrors.Database(err)
	}

	log.Debug().
		Int64("roomId", roomID).
		Int64("readerIdentityId", reader.ID).
		Str("readerKind", string(reader.Kind)).
		Msg("room marked read")

	s.hub.EmitToRoom(ctx, roomID, chat.MessagesReadEvent(roomID, reader.Kind), originSessionID)

	return nil
}

// Typing relays a typing indicator to the other participant's sessions.
// Nothing is persisted and nothing is replayed on reconnect.
func (s *MessageService) Typing(ctx context.Context, identity model.Identity, roomID int64, isTyping bool, originSessionID string) error {
	if _, err := s.rooms.Authorize(ctx, identity, roomID); err != nil {
		return err
	}

	s.hub.EmitToRoom(ctx, roomID, chat.UserTypingEvent(roomID, identity.ID, isTyping), originSessionID)
	return nil
}

func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
