package frontdesk

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval keeps the grid within one interval of server truth.
const DefaultPollInterval = 15 * time.Second

// PollerConfig configures a Poller. Tick and Stop replace the internal
// ticker in tests.
type PollerConfig struct {
	Console  *Console
	Interval time.Duration

	Tick <-chan time.Time
	Stop func()
}

// Poller refreshes the console on a fixed interval and keeps the visible
// week on today's week. A failed poll is retried on the next tick; there is
// no backoff.
type Poller struct {
	console *Console
	tick    <-chan time.Time
	stop    func()
}

func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Console == nil {
		return nil, errors.New("frontdesk: poller requires a console")
	}
	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}
	return &Poller{console: cfg.Console, tick: tick, stop: stop}, nil
}

// Start refreshes immediately, then on every tick until ctx is done.
func (p *Poller) Start(ctx context.Context) {
	if p == nil {
		return
	}
	defer func() {
		if p.stop != nil {
			p.stop()
		}
	}()

	_ = p.console.FollowToday(ctx, ReasonStartup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.tick:
			_ = p.console.FollowToday(ctx, ReasonPoll)
		}
	}
}
