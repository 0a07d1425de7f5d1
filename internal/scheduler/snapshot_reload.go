package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// DefaultReloadInterval is how often the full snapshot is refetched
const DefaultReloadInterval = 5 * time.Minute

// Reloader refetches the authoritative snapshot, normally *engine.Engine
type Reloader interface {
	Reload(ctx context.Context) error
}

// SnapshotReloader periodically replaces the collection with a fresh
// snapshot. It is the recovery path for events missed while the realtime
// stream was down, and can be triggered on demand.
type SnapshotReloader struct {
	target        Reloader
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
	reloaded      func(err error)
}

// NewSnapshotReloader creates a new reloader. A zero interval disables
// the periodic reload and keeps only manual triggers.
func NewSnapshotReloader(target Reloader, log logger.Logger, interval time.Duration) *SnapshotReloader {
	return &SnapshotReloader{
		target:        target,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: make(chan struct{}, 1),
	}
}

// OnReload registers a hook called after every reload attempt
func (sr *SnapshotReloader) OnReload(fn func(err error)) {
	sr.reloaded = fn
}

// Start begins the reload loop
func (sr *SnapshotReloader) Start(ctx context.Context) {
	go func() {
		var tick <-chan time.Time
		if sr.interval > 0 {
			ticker := time.NewTicker(sr.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				sr.reload(ctx)
			case <-sr.manualTrigger:
				sr.logger.Info("manual snapshot reload triggered")
				sr.reload(ctx)
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Trigger requests a reload without waiting for it. Triggers arriving
// while one is already queued are coalesced and report false.
func (sr *SnapshotReloader) Trigger() bool {
	select {
	case sr.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop stops the reloader
func (sr *SnapshotReloader) Stop() {
	close(sr.stopCh)
}

func (sr *SnapshotReloader) reload(ctx context.Context) {
	err := sr.target.Reload(ctx)
	if err != nil {
		sr.logger.Error("failed to reload snapshot", logger.Error(err))
	}
	if sr.reloaded != nil {
		sr.reloaded(err)
	}
}
