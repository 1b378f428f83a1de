package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often live elapsed time is pushed while a
// speaker runs.
const DefaultTickInterval = time.Second

// RunningChecker reports whether any speaker is running
type RunningChecker interface {
	AnyRunning() bool
}

// StateBroadcaster pushes the full speaker list to viewers
type StateBroadcaster interface {
	BroadcastState()
}

// Ticker broadcasts the speaker list on a fixed cadence while any speaker is
// running. It only reads the snapshot, never the App lock.
type Ticker struct {
	clock       clockwork.Clock
	interval    time.Duration
	checker     RunningChecker
	broadcaster StateBroadcaster
}

// NewTicker creates a ticker. A nil clock means the real clock.
func NewTicker(clock clockwork.Clock, interval time.Duration, checker RunningChecker, broadcaster StateBroadcaster) *Ticker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Ticker{
		clock:       clock,
		interval:    interval,
		checker:     checker,
		broadcaster: broadcaster,
	}
}

// Run ticks until ctx is done
func (t *Ticker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("ticker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ticker stopped")
			return
		case <-ticker.Chan():
			if t.checker.AnyRunning() {
				t.broadcaster.BroadcastState()
			}
		}
	}
}
