package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/realtime"
	"github.com/MrSnakeDoc/shelf/internal/store/sqlite"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// Two surfaces of the same user share one store: a write on one shows up
// on the other through the change stream, and both converge.
func TestTwoSurfacesConverge(t *testing.T) {
	log := logger.New("error", false)
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "shelf.db"), log)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	surface := func() (*engine.Engine, *index.Collection) {
		coll := index.NewCollection()
		e := engine.New(engine.Options{Owner: "u1", Store: store, Collection: coll, Logger: log})
		r, err := realtime.New(realtime.Options{Collection: coll, Logger: log})
		if err != nil {
			t.Fatalf("realtime.New() error = %v", err)
		}
		go func() { _ = r.Run(ctx, store, "u1") }()
		t.Cleanup(func() { _ = e.Close(context.Background()) })
		return e, coll
	}
	a, collA := surface()
	_, collB := surface()
	// Let both subscriptions attach before the first write.
	time.Sleep(50 * time.Millisecond)

	added, op, err := a.AddBookmark(ctx, engine.AddRequest{URL: "example.com", Title: "Example"})
	if err != nil {
		t.Fatalf("AddBookmark() error = %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	defer waitCancel()
	if err := op.Wait(waitCtx); err != nil {
		t.Fatalf("add op error = %v", err)
	}

	eventually(t, "remote surface sees the bookmark", func() bool {
		all := collB.Bookmarks()
		return len(all) == 1 && all[0].ClientRef == added.ID && all[0].Title == "Example"
	})
	if collA.Count() != 1 {
		t.Fatalf("local surface has %d records, want 1", collA.Count())
	}
	serverID := collA.Bookmarks()[0].ID

	g, err := a.CreateGroup(ctx, engine.GroupInput{Name: "Reading"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	eventually(t, "remote surface sees the group", func() bool { return collB.GroupCount() == 1 })

	moveOp, err := a.MoveBookmarks(ctx, []string{serverID}, g.ID)
	if err != nil {
		t.Fatalf("MoveBookmarks() error = %v", err)
	}
	if err := moveOp.Wait(waitCtx); err != nil {
		t.Fatalf("move op error = %v", err)
	}
	eventually(t, "remote surface sees the move", func() bool {
		b, ok := collB.Bookmark(serverID)
		return ok && b.InGroup(g.ID)
	})

	_, delOp, err := a.DeleteBookmarks(ctx, []string{serverID})
	if err != nil {
		t.Fatalf("DeleteBookmarks() error = %v", err)
	}
	if err := delOp.Wait(waitCtx); err != nil {
		t.Fatalf("delete op error = %v", err)
	}
	eventually(t, "remote surface sees the delete", func() bool { return collB.Count() == 0 })
	if collA.Count() != 0 {
		t.Errorf("local surface kept %d records", collA.Count())
	}
}
