package service

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/carelink/clinic-chat-go/internal/chat"
	"github.com/carelink/clinic-chat-go/internal/model"
	redisclient "github.com/carelink/clinic-chat-go/internal/redis"
)

// Mock room repository
type mockRoomRepo struct {
	mock.Mock
}

func (m *mockRoomRepo) FindByID(ctx context.Context, id int64) (*model.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Room), args.Error(1)
}

func (m *mockRoomRepo) FindByOwner(ctx context.Context, ownerIdentityID int64) ([]model.Room, error) {
	args := m.Called(ctx, ownerIdentityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Room), args.Error(1)
}

func (m *mockRoomRepo) FindByPatient(ctx context.Context, patientIdentityID int64) ([]model.Room, error) {
	args := m.Called(ctx, patientIdentityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Room), args.Error(1)
}

func (m *mockRoomRepo) GetOrCreate(ctx context.Context, ownerIdentityID, patientIdentityID int64) (*model.Room, error) {
	args := m.Called(ctx, ownerIdentityID, patientIdentityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Room), args.Error(1)
}

func (m *mockRoomRepo) Archive(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Mock message repository
type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Append(ctx context.Context, params model.AppendMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) History(ctx context.Context, roomID int64, page, limit int) ([]model.Message, error) {
	args := m.Called(ctx, roomID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) MarkRead(ctx context.Context, roomID int64, readerKind model.IdentityKind) error {
	args := m.Called(ctx, roomID, readerKind)
	return args.Error(0)
}

// Mock directory client
type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) IsRoomCreationAllowed(ctx context.Context, ownerIdentityID int64) (bool, error) {
	args := m.Called(ctx, ownerIdentityID)
	return args.Bool(0), args.Error(1)
}

func (m *mockDirectory) ParticipantName(ctx context.Context, identityID int64) (string, error) {
	args := m.Called(ctx, identityID)
	return args.String(0), args.Error(1)
}

// Presence stub with a fixed online set
type stubPresence struct {
	online map[int64]bool
}

func (s *stubPresence) SetOnline(ctx context.Context, identityID int64)  {}
func (s *stubPresence) SetOffline(ctx context.Context, identityID int64) {}
func (s *stubPresence) IsOnline(ctx context.Context, identityID int64) bool {
	return s.online[identityID]
}

// newTestHub returns a hub backed by an unreachable Redis. Index
// bookkeeping works; publishes are logged and dropped, which is exactly
// the isolation the services promise.
func newTestHub() *chat.Hub {
	client := &redisclient.Client{Client: goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})}
	return chat.NewHub(client)
}

func testRoom() *model.Room {
	return &model.Room{
		ID:                10,
		OwnerIdentityID:   2,
		PatientIdentityID: 1,
	}
}

func patientIdentity() model.Identity {
	return model.Identity{ID: 1, Kind: model.KindPatient}
}

func staffIdentity() model.Identity {
	return model.Identity{ID: 2, Kind: model.KindStaff}
}

func strPtr(s string) *string {
	return &s
}
