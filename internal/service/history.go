package service

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/carelink/clinic-chat-go/internal/directory"
	apperrors "github.com/carelink/clinic-chat-go/internal/errors"
	"github.com/carelink/clinic-chat-go/internal/model"
	"github.com/carelink/clinic-chat-go/internal/presence"
	"github.com/carelink/clinic-chat-go/internal/repository"
)

// HistoryService is the request/response complement to the live channel:
// room listings on load and message pages on cold reconnect or scroll-back.
type HistoryService struct {
	roomRepo    repository.RoomRepository
	messageRepo repository.MessageRepository
	rooms       *RoomService
	presence    presence.Tracker
	directory   directory.Client
}

func NewHistoryService(
	roomRepo repository.RoomRepository,
	messageRepo repository.MessageRepository,
	rooms *RoomService,
	presenceTracker presence.Tracker,
	directoryClient directory.Client,
) *HistoryService {
	return &HistoryService{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		rooms:       rooms,
		presence:    presenceTracker,
		directory:   directoryClient,
	}
}

// ListRooms returns the caller's rooms joined with the counterpart's
// presence and display name. Staff see the rooms they own, patients the
// rooms where they are the counterpart.
func (s *HistoryService) ListRooms(ctx context.Context, identity model.Identity) ([]model.RoomSummary, error) {
	var rooms []model.Room
	var err error
	if identity.Kind == model.KindStaff {
		rooms, err = s.roomRepo.FindByOwner(ctx, identity.ID)
	} else {
		rooms, err = s.roomRepo.FindByPatient(ctx, identity.ID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	summaries := lo.Map(rooms, func(room model.Room, _ int) model.RoomSummary {
		counterpartID := room.CounterpartID(identity.ID)
		name, nameErr := s.directory.ParticipantName(ctx, counterpartID)
		if nameErr != nil {
			// Display data only; the listing still works without it.
			log.Warn().
				Err(nameErr).
				Int64("identityId", counterpartID).
				Msg("failed to resolve counterpart name")
		}
		return model.RoomSummary{
			Room:              room,
			CounterpartName:   name,
			CounterpartOnline: s.presence.IsOnline(ctx, counterpartID),
			UnreadCount:       room.UnreadFor(identity.Kind),
		}
	})

	return summaries, nil
}

// ListMessages returns one newest-first page after re-running the
// participant check. It is a pure read; callers that want the "open chat"
// behavior compose this with MarkRead explicitly.
func (s *HistoryService) ListMessages(ctx context.Context, identity model.Identity, roomID int64, page, limit int) ([]model.Message, error) {
	if _, err := s.rooms.Authorize(ctx, identity, roomID); err != nil {
		return nil, err
	}

	msgs, err := s.messageRepo.History(ctx, roomID, page, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return msgs, nil
}
