package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// defaultCleanupInterval is how often the sweeper purges old sessions when
// no explicit interval is configured. The TTL defaults to the interval, so
// out of the box a session lives one day.
const defaultCleanupInterval = 24 * time.Hour

// Sweeper periodically purges sessions older than the TTL. One per
// process. An optional cron expression pins passes to wall-clock times;
// otherwise a fixed interval drives them.
type Sweeper struct {
	manager  *Manager
	logger   *slog.Logger
	interval time.Duration
	ttl      time.Duration
	schedule cron.Schedule

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds the sweep loop. A zero interval means daily, a zero
// ttl means one interval. cronExpr is optional; when set it is a standard
// five-field expression that overrides the interval.
func NewSweeper(manager *Manager, logger *slog.Logger, interval, ttl time.Duration, cronExpr string) (*Sweeper, error) {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if ttl <= 0 {
		ttl = interval
	}

	s := &Sweeper{
		manager:  manager,
		logger:   logger,
		interval: interval,
		ttl:      ttl,
		done:     make(chan struct{}),
	}

	if cronExpr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(cronExpr)
		if err != nil {
			return nil, fmt.Errorf("session: parse cleanup schedule %q: %w", cronExpr, err)
		}
		s.schedule = schedule
	}
	return s, nil
}

// Start launches the sweep loop. Call Stop to end it; no final pass runs
// at shutdown.
func (s *Sweeper) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("session: sweeper started", "ttl", s.ttl, "interval", s.interval, "cron", s.schedule != nil)
	go s.loop(loopCtx)
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			deleted := s.manager.CleanupOldSessions(ctx, s.ttl)
			s.logger.Debug("session: sweep pass", "deleted", deleted)
			timer.Reset(s.next())
		}
	}
}

func (s *Sweeper) next() time.Duration {
	if s.schedule != nil {
		return time.Until(s.schedule.Next(time.Now()))
	}
	return s.interval
}

// Stop signals the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
