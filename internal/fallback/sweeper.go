package fallback

import (
	"log/slog"
	"sync"
	"time"
)

// Sweeper runs the daily retention pass over local and archived fallback
// artifacts. It runs at 03:00 local time, outside normal capture hours.
type Sweeper struct {
	store         *Store
	archiver      *Archiver
	retentionDays int

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSweeper returns a sweeper over the given store. The archiver may be
// nil when S3 archival is disabled.
func NewSweeper(store *Store, archiver *Archiver, retentionDays int) *Sweeper {
	return &Sweeper{
		store:         store,
		archiver:      archiver,
		retentionDays: retentionDays,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the retention scheduler.
func (s *Sweeper) Start() {
	go func() {
		for {
			// Calculate duration until next 03:00
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}
			duration := next.Sub(now)

			slog.Info("retention sweep: next run scheduled", "at", next.Format(time.DateTime))

			select {
			case <-time.After(duration):
				s.Run()
			case <-s.stopCh:
				slog.Info("retention scheduler stopped")
				return
			}
		}
	}()
}

// Stop halts the scheduler. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run performs one retention pass immediately.
func (s *Sweeper) Run() {
	slog.Info("retention sweep: starting", "retention_days", s.retentionDays)

	if s.archiver != nil {
		s.archiver.ProcessRetries()
	}

	// Skip if retention is 0 (keep forever)
	if s.retentionDays > 0 {
		s.store.SweepLocal(s.retentionDays)
		if s.archiver != nil {
			s.archiver.SweepRemote(s.retentionDays)
		}
	}

	slog.Info("retention sweep: completed")
}
