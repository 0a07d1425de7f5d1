package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/engine"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ListenPort:        "127.0.0.1:0",
		ShutdownTimeout:   2 * time.Second,
		OwnerID:           "u1",
		Backend:           config.BackendSQLite,
		SQLiteDSN:         filepath.Join(t.TempDir(), "shelf.db"),
		RemoteTimeout:     2 * time.Second,
		Concurrency:       2,
		UndoWindow:        10 * time.Second,
		UndoCapacity:      5,
		UndoSweep:         time.Second,
		ExtensionTimeout:  250 * time.Millisecond,
		ReloadInterval:    0,
		MetadataTimeout:   200 * time.Millisecond,
		MetadataUserAgent: "shelf-test",
		MetadataCacheTTL:  time.Hour,
	}
}

func TestOpenBackendRejectsUnknownBackend(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Backend = "postgres"
	if _, err := OpenBackend(context.Background(), cfg, logger.Nop()); err == nil {
		t.Fatal("OpenBackend() should fail for an unknown backend")
	}
}

func TestSessionPersistsAcrossRestarts(t *testing.T) {
	cfg := sqliteConfig(t)
	ctx := context.Background()

	s, err := OpenSession(ctx, cfg, logger.New("error", false))
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	g, err := s.Engine.CreateGroup(ctx, engine.GroupInput{Name: "Reading"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	_, op, err := s.Engine.AddBookmark(ctx, engine.AddRequest{URL: "https://shelf.invalid/docs", Title: "Docs", GroupID: &g.ID})
	if err != nil {
		t.Fatalf("AddBookmark() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// Enrichment of an unresolvable host fails; the insert itself stays.
	_ = op.Wait(waitCtx)
	if err := s.Close(waitCtx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenSession(ctx, cfg, logger.New("error", false))
	if err != nil {
		t.Fatalf("second OpenSession() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	all := s.Engine.Bookmarks()
	if len(all) != 1 || all[0].Title != "Docs" || !all[0].InGroup(g.ID) {
		t.Errorf("reloaded bookmarks = %+v", all)
	}
	if s.Coll.GroupCount() != 1 {
		t.Errorf("reloaded %d groups, want 1", s.Coll.GroupCount())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := sqliteConfig(t)
	a, err := New(context.Background(), cfg, logger.New("error", false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
