package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/carelink/clinic-chat-go/internal/audit"
	"github.com/carelink/clinic-chat-go/internal/chat"
	"github.com/carelink/clinic-chat-go/internal/directory"
	apperrors "github.com/carelink/clinic-chat-go/internal/errors"
	"github.com/carelink/clinic-chat-go/internal/model"
	"github.com/carelink/clinic-chat-go/internal/repository"
)

type RoomService struct {
	roomRepo  repository.RoomRepository
	directory directory.Client
	hub       *chat.Hub
}

func NewRoomService(
	roomRepo repository.RoomRepository,
	directoryClient directory.Client,
	hub *chat.Hub,
) *RoomService {
	return &RoomService{
		roomRepo:  roomRepo,
		directory: directoryClient,
		hub:       hub,
	}
}

// GetOrCreate resolves the unique room for an (owner, patient) pair,
// creating it on first contact. Idempotent: a repeated call returns the
// existing room unchanged, including under concurrent duplicate creation.
// The requester must be one of the two sides.
func (s *RoomService) GetOrCreate(ctx context.Context, requester model.Identity, ownerIdentityID, patientIdentityID int64) (*model.Room, error) {
	if ownerIdentityID <= 0 {
		return nil, apperrors.MissingRequired("ownerIdentityId")
	}
	if patientIdentityID <= 0 {
		return nil, apperrors.MissingRequired("patientIdentityId")
	}
	if ownerIdentityID == patientIdentityID {
		return nil, apperrors.ValidationError("A room cannot pair an identity with itself")
	}

	requesterSide := patientIdentityID
	if requester.Kind == model.KindStaff {
		requesterSide = ownerIdentityID
	}
	if requester.ID != requesterSide {
		return nil, apperrors.Forbidden("Rooms can only be created for your own identity")
	}

	allowed, err := s.directory.IsRoomCreationAllowed(ctx, ownerIdentityID)
	if err != nil {
		return nil, apperrors.External("directory", err)
	}
	if !allowed {
		return nil, apperrors.Forbidden("This clinic account does not allow chat rooms")
	}

	room, err := s.roomRepo.GetOrCreate(ctx, ownerIdentityID, patientIdentityID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:       audit.EventRoomCreate,
		IdentityID: requester.ID,
		RoomID:     room.ID,
	})

	log.Info().
		Int64("roomId", room.ID).
		Int64("ownerIdentityId", ownerIdentityID).
		Int64("patientIdentityId", patientIdentityID).
		Msg("room resolved")

	return room, nil
}

// Authorize looks the room up and verifies the identity is one of its two
// participants. It is deliberately re-run on every operation that touches a
// room rather than cached on the session.
func (s *RoomService) Authorize(ctx context.Context, identity model.Identity, roomID int64) (*model.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if room == nil {
		return nil, apperrors.NotFound("Room")
	}
	if !room.Participant(identity.ID) {
		audit.Log(ctx, audit.Event{
			Type:       audit.EventRoomAccessDenied,
			IdentityID: identity.ID,
			RoomID:     roomID,
		})
		return nil, apperrors.Forbidden("Not a participant of this room")
	}
	return room, nil
}

// AuthorizeJoin is the join_room path: authorize, then register the session
// in the room's live index so fan-out reaches it. A denied join leaves the
// index untouched.
func (s *RoomService) AuthorizeJoin(ctx context.Context, session *chat.Session, roomID int64) (*model.Room, error) {
	room, err := s.Authorize(ctx, session.Identity, roomID)
	if err != nil {
		return nil, err
	}
	s.hub.JoinRoom(session, roomID)
	return room, nil
}

// Archive soft-archives a room; history stays durable and the pair resolves
// back to the same row if contact resumes.
func (s *RoomService) Archive(ctx context.Context, identity model.Identity, roomID int64) error {
	if _, err := s.Authorize(ctx, identity, roomID); err != nil {
		return err
	}
	if err := s.roomRepo.Archive(ctx, roomID); err != nil {
		return apperrors.Database(err)
	}
	log.Info().Int64("roomId", roomID).Msg("room archived")
	return nil
}
