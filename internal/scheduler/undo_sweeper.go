package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

const (
	// DefaultSweepInterval is how often expired undo entries are dropped
	DefaultSweepInterval = 5 * time.Second
	// DefaultTombstoneTTL is how long a locally deleted id keeps blocking
	// late insert echoes
	DefaultTombstoneTTL = 10 * time.Minute
)

// UndoSweeper expires undo entries past their window and forgets old
// tombstones of the shared collection
type UndoSweeper struct {
	ledger       *undo.Ledger
	coll         *index.Collection
	logger       logger.Logger
	interval     time.Duration
	tombstoneTTL time.Duration
	now          func() time.Time
	stopCh       chan struct{}
}

// NewUndoSweeper creates a new sweeper
func NewUndoSweeper(
	ledger *undo.Ledger,
	coll *index.Collection,
	log logger.Logger,
	interval time.Duration,
	tombstoneTTL time.Duration,
) *UndoSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if tombstoneTTL <= 0 {
		tombstoneTTL = DefaultTombstoneTTL
	}
	// A tombstone must outlive the undo entry that may still restore it.
	if w := ledger.Window(); tombstoneTTL < 2*w {
		tombstoneTTL = 2 * w
	}

	return &UndoSweeper{
		ledger:       ledger,
		coll:         coll,
		logger:       log,
		interval:     interval,
		tombstoneTTL: tombstoneTTL,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (us *UndoSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(us.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				us.Sweep()
			case <-us.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the sweeper
func (us *UndoSweeper) Stop() {
	close(us.stopCh)
}

// Sweep drops expired undo entries and stale tombstones, returning how
// many of each went
func (us *UndoSweeper) Sweep() (expired, pruned int) {
	now := us.now()

	expired = us.ledger.Sweep(now)
	if us.coll != nil {
		pruned = us.coll.PruneTombstones(now.Add(-us.tombstoneTTL))
	}

	if expired > 0 || pruned > 0 {
		us.logger.Debug("undo sweep completed",
			logger.Int("entries_expired", expired),
			logger.Int("tombstones_pruned", pruned))
	}
	return expired, pruned
}
