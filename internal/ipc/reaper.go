package ipc

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reaper periodically closes editor sessions that have seen no command for
// MaxIdle. Actions are persisted as they are committed, so an expired
// attempt keeps its log; the client finishes it through /api/v1/submissions.
type Reaper struct {
	Sessions *SessionManager
	Log      *slog.Logger
	Interval time.Duration
	MaxIdle  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewReaper creates a Reaper with defaults for zero durations.
func NewReaper(sessions *SessionManager, log *slog.Logger, interval, maxIdle time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = 2 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		Sessions: sessions,
		Log:      log,
		Interval: interval,
		MaxIdle:  maxIdle,
		stopCh:   make(chan struct{}),
	}
}

// Sweep closes the sessions idle at now and returns their attempt ids.
func (r *Reaper) Sweep(now time.Time) []string {
	closed := r.Sessions.CloseIdle(now, r.MaxIdle)
	for _, id := range closed {
		r.Log.Info("idle editor session closed", "attempt_id", id, "max_idle", r.MaxIdle)
	}
	return closed
}

// Start spawns the sweep loop. It runs until ctx is done or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
