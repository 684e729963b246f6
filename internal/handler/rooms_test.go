package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carelink/clinic-chat-go/internal/chat"
	"github.com/carelink/clinic-chat-go/internal/middleware"
	"github.com/carelink/clinic-chat-go/internal/model"
	redisclient "github.com/carelink/clinic-chat-go/internal/redis"
	"github.com/carelink/clinic-chat-go/internal/service"
)

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

type stubPresence struct{}

func (s *stubPresence) SetOnline(ctx context.Context, identityID int64)  {}
func (s *stubPresence) SetOffline(ctx context.Context, identityID int64) {}
func (s *stubPresence) IsOnline(ctx context.Context, identityID int64) bool {
	return false
}

type testEnv struct {
	roomRepo    *mockRoomRepo
	messageRepo *mockMessageRepo
	directory   *mockDirectory
	hub         *chat.Hub
	router      chi.Router
}

// newTestEnv wires real services over mock repositories behind the room
// routes, with the identity injected the way the auth layer does it.
func newTestEnv(t *testing.T, identity model.Identity) (*testEnv, func()) {
	t.Helper()

	roomRepo := new(mockRoomRepo)
	messageRepo := new(mockMessageRepo)
	dir := new(mockDirectory)
	presenceTracker := &stubPresence{}

	hub := chat.NewHub(&redisclient.Client{Client: goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})})

	roomService := service.NewRoomService(roomRepo, dir, hub)
	messageService := service.NewMessageService(messageRepo, roomService, hub)
	historyService := service.NewHistoryService(roomRepo, messageRepo, roomService, presenceTracker, dir)

	h := NewRoomsHandler(roomService, messageService, historyService, hub, presenceTracker)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.IdentityContextKey, &identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Mount("/v1/rooms", h.Routes())

	env := &testEnv{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		directory:   dir,
		hub:         hub,
		router:      router,
	}
	return env, hub.Close
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func ownedRoom() *model.Room {
	return &model.Room{ID: 10, OwnerIdentityID: 2, PatientIdentityID: 1}
}

func TestCreateRoomEndpoint(t *testing.T) {
	ctx := mock.Anything

	t.Run("staff create against a patient id", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 2, Kind: model.KindStaff})
		defer closeEnv()

		env.directory.On("IsRoomCreationAllowed", ctx, int64(2)).Return(true, nil)
		env.roomRepo.On("GetOrCreate", ctx, int64(2), int64(1)).Return(ownedRoom(), nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms", map[string]any{"patientIdentityId": 1})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		room := body["room"].(map[string]any)
		assert.Equal(t, float64(10), room["id"])
	})

	t.Run("the caller's own side wins over the payload", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 2, Kind: model.KindStaff})
		defer closeEnv()

		env.directory.On("IsRoomCreationAllowed", ctx, int64(2)).Return(true, nil)
		env.roomRepo.On("GetOrCreate", ctx, int64(2), int64(1)).Return(ownedRoom(), nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms", map[string]any{
			"ownerIdentityId":   999,
			"patientIdentityId": 1,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		env.roomRepo.AssertCalled(t, "GetOrCreate", ctx, int64(2), int64(1))
	})

	t.Run("ineligible clinic account is forbidden", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 2, Kind: model.KindStaff})
		defer closeEnv()

		env.directory.On("IsRoomCreationAllowed", ctx, int64(2)).Return(false, nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms", map[string]any{"patientIdentityId": 1})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing counterpart id is a bad request", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 2, Kind: model.KindStaff})
		defer closeEnv()

		rec := env.do(t, http.MethodPost, "/v1/rooms", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSendMessageEndpoint(t *testing.T) {
	ctx := mock.Anything

	t.Run("participant sends and gets the stored message back", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 1, Kind: model.KindPatient})
		defer closeEnv()

		env.roomRepo.On("FindByID", ctx, int64(10)).Return(ownedRoom(), nil)
		content := "How are you feeling today?"
		env.messageRepo.On("Append", ctx, mock.MatchedBy(func(p model.AppendMessageParams) bool {
			return p.RoomID == 10 && p.SenderIdentityID == 1 && *p.Content == content
		})).Return(&model.Message{RoomID: 10, Seq: 4, SenderIdentityID: 1, SenderKind: model.KindPatient, Content: &content}, nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms/10/messages", map[string]any{"content": content})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		msg := body["message"].(map[string]any)
		assert.Equal(t, float64(4), msg["seq"])
	})

	t.Run("foreign session id is forbidden", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 1, Kind: model.KindPatient})
		defer closeEnv()

		other := env.hub.Register(model.Identity{ID: 2, Kind: model.KindStaff})

		rec := env.do(t, http.MethodPost, "/v1/rooms/10/messages", map[string]any{
			"content":   "hi",
			"sessionId": other.ID,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		env.messageRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("non-numeric room id is a bad request", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 1, Kind: model.KindPatient})
		defer closeEnv()

		rec := env.do(t, http.MethodPost, "/v1/rooms/abc/messages", map[string]any{"content": "hi"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestJoinRoomEndpoint(t *testing.T) {
	ctx := mock.Anything

	t.Run("own session joins the live index", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 1, Kind: model.KindPatient})
		defer closeEnv()

		session := env.hub.Register(model.Identity{ID: 1, Kind: model.KindPatient})
		env.roomRepo.On("FindByID", ctx, int64(10)).Return(ownedRoom(), nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms/10/join", map[string]any{"sessionId": session.ID})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.hub.IsMember(session, 10))
	})

	t.Run("join without a session id is a bad request", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 1, Kind: model.KindPatient})
		defer closeEnv()

		rec := env.do(t, http.MethodPost, "/v1/rooms/10/join", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-participant join leaves the index untouched", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 77, Kind: model.KindPatient})
		defer closeEnv()

		session := env.hub.Register(model.Identity{ID: 77, Kind: model.KindPatient})
		env.roomRepo.On("FindByID", ctx, int64(10)).Return(ownedRoom(), nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms/10/join", map[string]any{"sessionId": session.ID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, env.hub.IsMember(session, 10))
	})
}

func TestListMessagesEndpoint(t *testing.T) {
	ctx := mock.Anything

	t.Run("returns a page and leaves unread alone", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 1, Kind: model.KindPatient})
		defer closeEnv()

		env.roomRepo.On("FindByID", ctx, int64(10)).Return(ownedRoom(), nil)
		env.messageRepo.On("History", ctx, int64(10), 1, 20).Return([]model.Message{
			{RoomID: 10, Seq: 2}, {RoomID: 10, Seq: 1},
		}, nil)

		rec := env.do(t, http.MethodGet, "/v1/rooms/10/messages", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Len(t, body["messages"], 2)
		assert.Equal(t, float64(1), body["page"])
		env.messageRepo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mark_read composes the read flip", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 1, Kind: model.KindPatient})
		defer closeEnv()

		env.roomRepo.On("FindByID", ctx, int64(10)).Return(ownedRoom(), nil)
		env.messageRepo.On("History", ctx, int64(10), 1, 20).Return([]model.Message{}, nil)
		env.messageRepo.On("MarkRead", ctx, int64(10), model.KindPatient).Return(nil)

		rec := env.do(t, http.MethodGet, "/v1/rooms/10/messages?mark_read=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		env.messageRepo.AssertExpectations(t)
	})
}

func TestArchiveRoomEndpoint(t *testing.T) {
	ctx := mock.Anything

	t.Run("participant archives", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 2, Kind: model.KindStaff})
		defer closeEnv()

		env.roomRepo.On("FindByID", ctx, int64(10)).Return(ownedRoom(), nil)
		env.roomRepo.On("Archive", ctx, int64(10)).Return(nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms/10/archive", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["success"])
	})

	t.Run("outsider cannot archive", func(t *testing.T) {
		env, closeEnv := newTestEnv(t, model.Identity{ID: 77, Kind: model.KindStaff})
		defer closeEnv()

		env.roomRepo.On("FindByID", ctx, int64(10)).Return(ownedRoom(), nil)

		rec := env.do(t, http.MethodPost, "/v1/rooms/10/archive", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		env.roomRepo.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
	})
}
