package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carelink/clinic-chat-go/internal/audit"
	"github.com/carelink/clinic-chat-go/internal/chat"
	"github.com/carelink/clinic-chat-go/internal/middleware"
	"github.com/carelink/clinic-chat-go/internal/presence"
)

// EventsHandler is the live downlink: each connection gets a hub session
// and an SSE stream carrying that session's fan-out events. Requests
// (join, send, read, typing) arrive as separate POSTs referencing the
// session id announced in the connected event.
type EventsHandler struct {
	hub      *chat.Hub
	presence presence.Tracker
}

func NewEventsHandler(hub *chat.Hub, presenceTracker presence.Tracker) *EventsHandler {
	return &EventsHandler{
		hub:      hub,
		presence: presenceTracker,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	session := h.hub.Register(*identity)
	h.presence.SetOnline(r.Context(), identity.ID)

	audit.Log(r.Context(), audit.Event{
		Type:       audit.EventConnectSuccess,
		IdentityID: identity.ID,
		SessionID:  session.ID,
		IP:         r.RemoteAddr,
	})

	defer func() {
		// The request context is already canceled here; cleanup needs its
		// own so the eager presence delete still reaches Redis.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()

		h.hub.Unregister(session)
		// Other devices of the same identity keep it online; the delete
		// is best-effort either way, the key expires on its own.
		if h.hub.IdentitySessionCount(identity.ID) == 0 {
			h.presence.SetOffline(cleanupCtx, identity.ID)
		}
		audit.Log(cleanupCtx, audit.Event{
			Type:       audit.EventSessionClose,
			IdentityID: identity.ID,
			SessionID:  session.ID,
		})
	}()

	if err := h.sendEvent(w, flusher, chat.EventConnected, map[string]any{
		"sessionId":  session.ID,
		"identityId": identity.ID,
		"kind":       identity.Kind,
	}); err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to send connected event")
		return
	}

	heartbeat := time.NewTicker(chat.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("sessionId", session.ID).
				Msg("event stream closed by client")
			return

		case <-session.Done:
			log.Info().
				Str("sessionId", session.ID).
				Msg("event stream closed by hub")
			return

		case event := <-session.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("sessionId", session.ID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
			h.hub.Touch(session)
			h.presence.SetOnline(ctx, identity.ID)
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, chat.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event chat.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
