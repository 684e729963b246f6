package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carelink/clinic-chat-go/internal/chat"
)

// SessionIdleTimeout is how long a session may go without a heartbeat touch
// before the reaper drops it. The events handler touches every 30s, so this
// only catches leaked sessions.
const SessionIdleTimeout = 5 * time.Minute

// SessionReaper periodically sweeps the hub for sessions whose stream
// handler stopped without unregistering.
type SessionReaper struct {
	hub      *chat.Hub
	interval time.Duration
	done     chan struct{}
}

func NewSessionReaper(hub *chat.Hub, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		hub:      hub,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SessionReaper) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session reaper started")
}

func (j *SessionReaper) Stop() {
	close(j.done)
	log.Info().Msg("session reaper stopped")
}

func (j *SessionReaper) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			if reaped := j.hub.ReapIdle(SessionIdleTimeout); reaped > 0 {
				log.Info().Int("count", reaped).Msg("reaped idle sessions")
			}
		}
	}
}
