package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reaper periodically removes deletion requests whose verification
// link was never activated within the retention window.
type Reaper struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string
	reap     func(ctx context.Context)
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewReaper creates a stopped reaper. Schedule uses standard five-field
// cron syntax.
func NewReaper(schedule string, reap func(ctx context.Context), logger *zap.Logger) *Reaper {
	return &Reaper{
		cron:     cron.New(),
		schedule: schedule,
		reap:     reap,
		logger:   logger,
	}
}

// Start registers the reap job and begins the cron loop.
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reaper is already running")
	}

	entryID, err := r.cron.AddFunc(r.schedule, r.run)
	if err != nil {
		return fmt.Errorf("add cron entry: %w", err)
	}

	r.entryID = entryID
	r.cron.Start()
	r.running = true

	r.logger.Info("stale request reaper started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts the cron loop and waits for an in-flight pass to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	ctx := r.cron.Stop()
	select {
	case <-ctx.Done():
		r.logger.Info("stale request reaper stopped")
	case <-time.After(30 * time.Second):
		r.logger.Warn("stale request reaper stop timed out")
	}
	r.running = false
}

// IsRunning reports whether the cron loop is active.
func (r *Reaper) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// NextRun returns the next scheduled pass, or the zero time when stopped.
func (r *Reaper) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return time.Time{}
	}
	return r.cron.Entry(r.entryID).Next
}

func (r *Reaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	r.reap(ctx)
}
