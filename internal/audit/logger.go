package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventConnectSuccess   EventType = "connect_success"
	EventConnectFailure   EventType = "connect_failure"
	EventRoomCreate       EventType = "room_create"
	EventRoomAccessDenied EventType = "room_access_denied"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventSessionClose     EventType = "session_close"
)

type Event struct {
	Type       EventType
	IdentityID int64
	SessionID  string
	RoomID     int64
	IP         string
	Details    map[string]interface{}
}

// Log writes a security-relevant event to the structured log with a stable
// shape, so downstream tooling can filter on audit=security.
func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.IdentityID != 0 {
		logger = logger.With().Int64("identity_id", event.IdentityID).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.RoomID != 0 {
		logger = logger.With().Int64("room_id", event.RoomID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = logEvent.Interface(k, v)
	}
	logEvent.Msg("audit event")
}
