package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/carelink/clinic-chat-go/internal/redis"
)

// Tracker records ephemeral online state per identity. Absence of the key
// means offline. Presence is an enhancement on top of messaging, so the
// whole surface fails open: a Redis outage makes everyone look offline and
// write failures are swallowed.
type Tracker interface {
	SetOnline(ctx context.Context, identityID int64)
	SetOffline(ctx context.Context, identityID int64)
	IsOnline(ctx context.Context, identityID int64) bool
}

type redisTracker struct {
	redis *redisclient.Client
	ttl   time.Duration
}

func NewTracker(redisClient *redisclient.Client, ttl time.Duration) Tracker {
	return &redisTracker{redis: redisClient, ttl: ttl}
}

// SetOnline writes the marker with a sliding expiry; calling it again on
// activity refreshes the TTL.
func (t *redisTracker) SetOnline(ctx context.Context, identityID int64) {
	key := redisclient.PresenceKey(identityID)
	if err := t.redis.Set(ctx, key, "online", t.ttl).Err(); err != nil {
		log.Warn().
			Err(err).
			Int64("identityId", identityID).
			Msg("presence write failed, ignoring")
	}
}

// SetOffline deletes the marker eagerly on clean disconnect. If the delete
// fails the key is left to expire on its own.
func (t *redisTracker) SetOffline(ctx context.Context, identityID int64) {
	key := redisclient.PresenceKey(identityID)
	if err := t.redis.Del(ctx, key).Err(); err != nil {
		log.Warn().
			Err(err).
			Int64("identityId", identityID).
			Msg("presence delete failed, key will expire")
	}
}

// IsOnline is a point-in-time best-effort read. False negatives are
// possible near expiry; errors read as offline.
func (t *redisTracker) IsOnline(ctx context.Context, identityID int64) bool {
	key := redisclient.PresenceKey(identityID)
	n, err := t.redis.Exists(ctx, key).Result()
	if err != nil {
		log.Debug().
			Err(err).
			Int64("identityId", identityID).
			Msg("presence read failed, reporting offline")
		return false
	}
	return n > 0
}
