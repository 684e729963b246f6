package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/carelink/clinic-chat-go/internal/model"
	redisclient "github.com/carelink/clinic-chat-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second

	// sessionBuffer bounds each session's outbound queue so one slow
	// consumer cannot stall the broadcaster or other sessions.
	sessionBuffer = 100
)

// Session is one live connection of an identity. An identity may hold any
// number of concurrent sessions (multiple devices).
type Session struct {
	ID       string
	Identity model.Identity
	Events   chan Event
	Done     chan struct{}

	lastActive time.Time // guarded by the hub mutex
}

// Hub holds the session registry and the per-room live index, and fans
// events out through Redis pub/sub so every server instance delivers to its
// local sessions.
type Hub struct {
	redis *redisclient.Client

	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[int64]map[*Session]bool // live room index
	joined   map[*Session]map[int64]bool // reverse index for disconnect cleanup
	subs     map[int64]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(redisClient *redisclient.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		redis:    redisClient,
		sessions: make(map[string]*Session),
		rooms:    make(map[int64]map[*Session]bool),
		joined:   make(map[*Session]map[int64]bool),
		subs:     make(map[int64]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register creates a Session for an authenticated identity.
func (h *Hub) Register(identity model.Identity) *Session {
	session := &Session{
		ID:         uuid.NewString(),
		Identity:   identity,
		Events:     make(chan Event, sessionBuffer),
		Done:       make(chan struct{}),
		lastActive: time.Now(),
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	total := len(h.sessions)
	h.mu.Unlock()

	log.Info().
		Str("sessionId", session.ID).
		Int64("identityId", identity.ID).
		Str("kind", string(identity.Kind)).
		Int("sessionCount", total).
		Msg("session registered")

	return session
}

// Session resolves a session id to the live session, or nil.
func (h *Hub) Session(sessionID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sessionID]
}

// JoinRoom adds the session to the room's live index. Authorization has
// already happened by the time this is called. The first local member of a
// room starts that room's pub/sub subscriber.
func (h *Hub) JoinRoom(session *Session, roomID int64) {
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Session]bool)
		subCtx, subCancel := context.WithCancel(h.ctx)
		h.subs[roomID] = subCancel
		go h.subscribeRoom(subCtx, roomID)
	}
	h.rooms[roomID][session] = true
	if h.joined[session] == nil {
		h.joined[session] = make(map[int64]bool)
	}
	h.joined[session][roomID] = true
	memberCount := len(h.rooms[roomID])
	h.mu.Unlock()

	log.Info().
		Str("sessionId", session.ID).
		Int64("roomId", roomID).
		Int("memberCount", memberCount).
		Msg("session joined room")
}

// IsMember reports whether the session sits in the room's live index.
func (h *Hub) IsMember(session *Session, roomID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][session]
}

// Touch records liveness for the stale-session reaper.
func (h *Hub) Touch(session *Session) {
	h.mu.Lock()
	session.lastActive = time.Now()
	h.mu.Unlock()
}

// Unregister removes the session from every room's live index and from the
// registry. It is the disconnect path and must not block other sessions;
// in-flight appends and read flips on other goroutines run to completion.
func (h *Hub) Unregister(session *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[session.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, session.ID)
	for roomID := range h.joined[session] {
		h.removeFromRoomLocked(session, roomID)
	}
	delete(h.joined, session)
	close(session.Done)
	total := len(h.sessions)
	h.mu.Unlock()

	log.Info().
		Str("sessionId", session.ID).
		Int64("identityId", session.Identity.ID).
		Int("sessionCount", total).
		Msg("session unregistered")
}

func (h *Hub) removeFromRoomLocked(session *Session, roomID int64) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, session)
	if len(members) == 0 {
		delete(h.rooms, roomID)
		if cancel, ok := h.subs[roomID]; ok {
			cancel()
			delete(h.subs, roomID)
		}
	}
}

// EmitToRoom publishes an event to every live session of the room's
// participants, optionally skipping the originating session (which already
// has the ack). Publish order is delivery order per room.
func (h *Hub) EmitToRoom(ctx context.Context, roomID int64, event Event, excludeSessionID string) {
	payload, err := json.Marshal(envelope{Event: event, ExcludeSessionID: excludeSessionID})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal fan-out envelope")
		return
	}

	if err := h.redis.Publish(ctx, redisclient.RoomChannel(roomID), payload).Err(); err != nil {
		// Delivery failures never fail the triggering operation; the
		// client recovers the gap via backfill.
		log.Error().
			Err(err).
			Int64("roomId", roomID).
			Str("event", event.Type).
			Msg("fan-out publish failed")
	}
}

func (h *Hub) subscribeRoom(ctx context.Context, roomID int64) {
	channel := redisclient.RoomChannel(roomID)
	pubsub := h.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Int64("roomId", roomID).
		Str("channel", channel).
		Msg("room pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal fan-out envelope")
				continue
			}

			h.deliver(roomID, env)
		}
	}
}

// deliver hands the event to each local member of the room. The send never
// blocks: a session whose buffer is full loses the event and catches up via
// backfill on its next history call.
func (h *Hub) deliver(roomID int64, env envelope) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[roomID]))
	for session := range h.rooms[roomID] {
		members = append(members, session)
	}
	h.mu.RUnlock()

	for _, session := range members {
		if session.ID == env.ExcludeSessionID {
			continue
		}
		select {
		case session.Events <- env.Event:
		default:
			log.Warn().
				Str("sessionId", session.ID).
				Int64("roomId", roomID).
				Str("event", env.Event.Type).
				Msg("session event buffer full, dropping event")
		}
	}
}

// ReapIdle unregisters sessions with no activity since the deadline. The
// events handler touches its session on every heartbeat, so only leaked
// sessions ever trip this.
func (h *Hub) ReapIdle(idleFor time.Duration) int {
	deadline := time.Now().Add(-idleFor)

	h.mu.RLock()
	var stale []*Session
	for _, session := range h.sessions {
		if session.lastActive.Before(deadline) {
			stale = append(stale, session)
		}
	}
	h.mu.RUnlock()

	for _, session := range stale {
		log.Warn().
			Str("sessionId", session.ID).
			Int64("identityId", session.Identity.ID).
			Msg("reaping idle session")
		h.Unregister(session)
	}
	return len(stale)
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, session := range h.sessions {
		close(session.Done)
	}
	h.sessions = make(map[string]*Session)
	h.rooms = make(map[int64]map[*Session]bool)
	h.joined = make(map[*Session]map[int64]bool)
	h.subs = make(map[int64]context.CancelFunc)
}

// IdentitySessionCount returns how many live sessions an identity holds.
// Presence goes offline only when the last one disconnects.
func (h *Hub) IdentitySessionCount(identityID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, session := range h.sessions {
		if session.Identity.ID == identityID {
			count++
		}
	}
	return count
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomMemberCount returns the number of live sessions in a room's index.
func (h *Hub) RoomMemberCount(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
