package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/carelink/clinic-chat-go/internal/chat"
	apperrors "github.com/carelink/clinic-chat-go/internal/errors"
	"github.com/carelink/clinic-chat-go/internal/middleware"
	"github.com/carelink/clinic-chat-go/internal/model"
	"github.com/carelink/clinic-chat-go/internal/presence"
	"github.com/carelink/clinic-chat-go/internal/service"
)

type RoomsHandler struct {
	roomService    *service.RoomService
	messageService *service.MessageService
	historyService *service.HistoryService
	hub            *chat.Hub
	presence       presence.Tracker
}

func NewRoomsHandler(
	roomService *service.RoomService,
	messageService *service.MessageService,
	historyService *service.HistoryService,
	hub *chat.Hub,
	presenceTracker presence.Tracker,
) *RoomsHandler {
	return &RoomsHandler{
		roomService:    roomService,
		messageService: messageService,
		historyService: historyService,
		hub:            hub,
		presence:       presenceTracker,
	}
}

func (h *RoomsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListRooms)
	r.Post("/", h.CreateRoom)
	r.Post("/{roomID}/join", h.JoinRoom)
	r.Get("/{roomID}/messages", h.ListMessages)
	r.Post("/{roomID}/messages", h.SendMessage)
	r.Post("/{roomID}/read", h.MarkRead)
	r.Post("/{roomID}/typing", h.Typing)
	r.Post("/{roomID}/archive", h.ArchiveRoom)

	return r
}

// POST /v1/rooms
// Staff supply the patient side, patients the owner side; the caller's own
// id fills the other slot.
func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req struct {
		OwnerIdentityID   int64 `json:"ownerIdentityId"`
		PatientIdentityID int64 `json:"patientIdentityId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Malformed request body"))
		return
	}

	ownerID, patientID := req.OwnerIdentityID, req.PatientIdentityID
	if identity.Kind == model.KindStaff {
		ownerID = identity.ID
	} else {
		patientID = identity.ID
	}

	room, err := h.roomService.GetOrCreate(r.Context(), *identity, ownerID, patientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ack(map[string]any{"room": room}))
}

// GET /v1/rooms
func (h *RoomsHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	summaries, err := h.historyService.ListRooms(r.Context(), *identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rooms": summaries})
}

// POST /v1/rooms/{roomID}/join
// Ack carries the room; on success the session receives this room's
// fan-out events until disconnect.
func (h *RoomsHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Malformed request body"))
		return
	}

	session, err := h.ownSession(identity, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		writeError(w, apperrors.MissingRequired("sessionId"))
		return
	}

	room, err := h.roomService.AuthorizeJoin(r.Context(), session, roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.presence.SetOnline(r.Context(), identity.ID)

	writeJSON(w, http.StatusOK, ack(map[string]any{"room": room}))
}

// POST /v1/rooms/{roomID}/messages
func (h *RoomsHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}

	var req struct {
		Content       *string `json:"content"`
		AttachmentRef *string `json:"attachmentRef"`
		SessionID     string  `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Malformed request body"))
		return
	}

	session, err := h.ownSession(identity, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	originSessionID := ""
	if session != nil {
		originSessionID = session.ID
	}

	msg, err := h.messageService.Send(r.Context(), *identity, service.SendMessageParams{
		RoomID:          roomID,
		Content:         req.Content,
		AttachmentRef:   req.AttachmentRef,
		OriginSessionID: originSessionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.presence.SetOnline(r.Context(), identity.ID)

	writeJSON(w, http.StatusOK, ack(map[string]any{"message": msg}))
}

// POST /v1/rooms/{roomID}/read
func (h *RoomsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if r.Body != nil {
		// Body is optional here; a bare POST marks read without an
		// originating session.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := h.ownSession(identity, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	originSessionID := ""
	if session != nil {
		originSessionID = session.ID
	}

	if err := h.messageService.MarkRead(r.Context(), *identity, roomID, originSessionID); err != nil {
		writeError(w, err)
		return
	}

	h.presence.SetOnline(r.Context(), identity.ID)

	writeJSON(w, http.StatusOK, ack(nil))
}

// POST /v1/rooms/{roomID}/typing
// Fire-and-forget: no ack body, no persistence, no replay.
func (h *RoomsHandler) Typing(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}

	var req struct {
		IsTyping  bool   `json:"isTyping"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Malformed request body"))
		return
	}

	session, err := h.ownSession(identity, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	originSessionID := ""
	if session != nil {
		originSessionID = session.ID
	}

	if err := h.messageService.Typing(r.Context(), *identity, roomID, req.IsTyping, originSessionID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/rooms/{roomID}/messages?page=&limit=&mark_read=
// Newest-first pages; the caller reverses for chronological display.
// mark_read=true is the "open chat" composition of history plus the read
// flip; without it this is a pure peek.
func (h *RoomsHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}

	pagination := ParsePagination(r)

	msgs, err := h.historyService.ListMessages(r.Context(), *identity, roomID, pagination.Page, pagination.Limit)
	if err != nil {
		writeError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("mark_read"), "true") {
		if err := h.messageService.MarkRead(r.Context(), *identity, roomID, ""); err != nil {
			log.Warn().Err(err).Int64("roomId", roomID).Msg("mark read on open failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"page":     pagination.Page,
		"limit":    pagination.Limit,
	})
}

// POST /v1/rooms/{roomID}/archive
func (h *RoomsHandler) ArchiveRoom(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	roomID, ok := parseRoomID(w, r)
	if !ok {
		return
	}

	if err := h.roomService.Archive(r.Context(), *identity, roomID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ack(nil))
}

// ownSession resolves an optional session id and verifies it belongs to the
// caller. A missing id yields (nil, nil); a foreign or unknown id is an
// error so one identity cannot steer another's live session.
func (h *RoomsHandler) ownSession(identity *model.Identity, sessionID string) (*chat.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session := h.hub.Session(sessionID)
	if session == nil || session.Identity.ID != identity.ID {
		return nil, apperrors.Forbidden("Session does not belong to this identity")
	}
	return session, nil
}

func parseRoomID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || roomID <= 0 {
		writeError(w, apperrors.InvalidInput("roomID", "must be a positive integer"))
		return 0, false
	}
	return roomID, true
}
