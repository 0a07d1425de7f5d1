package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

func TestUndoSweeper_Sweep(t *testing.T) {
	log := logger.New("error", false)
	now := time.Now()
	clock := now

	ledger := undo.New(10, time.Minute).WithClock(func() time.Time { return clock })
	ledger.Record(undo.Entry{Kind: undo.KindBookmarks})
	clock = now.Add(45 * time.Second)
	ledger.Record(undo.Entry{Kind: undo.KindBookmarks})

	coll := index.NewCollection()
	_ = coll.Update("test", func(s *index.State) error {
		s.Bury(now.Add(-time.Hour), "old")
		s.Bury(now, "recent")
		return nil
	})

	sweeper := NewUndoSweeper(ledger, coll, log, time.Second, 10*time.Minute)
	sweeper.now = func() time.Time { return now.Add(90 * time.Second) }

	expired, pruned := sweeper.Sweep()
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if ledger.Len() != 1 {
		t.Errorf("ledger holds %d entries, want 1", ledger.Len())
	}

	var buried bool
	coll.View(func(s *index.State) { buried = s.Buried("recent") })
	if !buried {
		t.Error("recent tombstone was pruned")
	}
}

func TestUndoSweeper_TombstonesOutliveUndoWindow(t *testing.T) {
	ledger := undo.New(10, 10*time.Minute)
	sweeper := NewUndoSweeper(ledger, nil, logger.New("error", false), 0, time.Minute)

	if sweeper.tombstoneTTL != 20*time.Minute {
		t.Errorf("tombstoneTTL = %v, want 20m", sweeper.tombstoneTTL)
	}
	if sweeper.interval != DefaultSweepInterval {
		t.Errorf("interval = %v, want default", sweeper.interval)
	}
}

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestSnapshotReloader_Trigger(t *testing.T) {
	target := &countingReloader{err: errors.New("offline")}
	sr := NewSnapshotReloader(target, logger.New("error", false), 0)

	results := make(chan error, 4)
	sr.OnReload(func(err error) { results <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sr.Start(ctx)
	defer sr.Stop()

	sr.Trigger()
	select {
	case err := <-results:
		if err == nil {
			t.Error("reload error not reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("manual trigger did not reload")
	}
	if target.calls.Load() != 1 {
		t.Errorf("Reload called %d times, want 1", target.calls.Load())
	}
}

func TestSnapshotReloader_Periodic(t *testing.T) {
	target := &countingReloader{}
	sr := NewSnapshotReloader(target, logger.New("error", false), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sr.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for target.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sr.Stop()
	if target.calls.Load() < 2 {
		t.Errorf("Reload called %d times, want at least 2", target.calls.Load())
	}
}

func TestSnapshotReloader_TriggersCoalesce(t *testing.T) {
	sr := NewSnapshotReloader(&countingReloader{}, logger.New("error", false), 0)
	// Not started: the second trigger must not block.
	sr.Trigger()
	sr.Trigger()
	if len(sr.manualTrigger) != 1 {
		t.Errorf("queued triggers = %d, want 1", len(sr.manualTrigger))
	}
}
