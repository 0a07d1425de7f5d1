package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/metadata"
	"github.com/MrSnakeDoc/shelf/internal/remote/remotetest"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

const owner = "user-1"

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	e     *Engine
	fake  *remotetest.Fake
	bus   *events.Bus
	mu    sync.Mutex
	notes []events.Notification
}

func newHarness(t *testing.T, ex metadata.Extractor) *harness {
	t.Helper()
	h := &harness{fake: remotetest.New(), bus: events.NewBus()}
	events.Subscribe(h.bus, events.Notifications, func(n events.Notification) {
		h.mu.Lock()
		h.notes = append(h.notes, n)
		h.mu.Unlock()
	})
	h.e = New(Options{
		Owner:         owner,
		Store:         h.fake,
		Extractor:     ex,
		Bus:           h.bus,
		Logger:        logger.New("error", false),
		Ledger:        undo.New(10, time.Minute),
		RemoteTimeout: time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.e.Close(ctx)
	})
	return h
}

func (h *harness) failures() []events.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Notification
	for _, n := range h.notes {
		if n.Level == events.LevelError {
			out = append(out, n)
		}
	}
	return out
}

// seed stores n bookmarks b1..bn with order indices 0..n-1 and loads them.
func (h *harness) seed(t *testing.T, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		b := domain.Bookmark{
			ID:         fmt.Sprintf("b%d", i),
			URL:        fmt.Sprintf("https://site%d.io", i),
			OrderIndex: domain.Int64(int64(i - 1)),
			Status:     domain.StatusReady,
			CreatedAt:  base,
		}
		b.Fill(base)
		h.fake.SeedBookmarks(owner, b)
	}
	if err := h.e.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func ids(items []*domain.Bookmark) string {
	out := make([]string, len(items))
	for i, b := range items {
		out[i] = b.ID
	}
	return strings.Join(out, ",")
}

func wait(t *testing.T, op *Op) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("op %s did not finish", op.Name())
	}
	return err
}

// ─────────────────────────────────────────────────────────────────
// Add
// ─────────────────────────────────────────────────────────────────

func TestAddBookmarkScenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	added, op, err := h.e.AddBookmark(ctx, AddRequest{URL: "example.com"})
	if err != nil {
		t.Fatalf("AddBookmark() error = %v", err)
	}
	if added.NormalizedURL != "https://example.com" {
		t.Errorf("NormalizedURL = %q", added.NormalizedURL)
	}
	if added.URL != "example.com" || added.Href() != "https://example.com" {
		t.Errorf("URL = %q Href = %q, want the entered url kept", added.URL, added.Href())
	}
	if added.Status != domain.StatusPending {
		t.Errorf("Status = %s, want pending before the store answers", added.Status)
	}
	if err := wait(t, op); err != nil {
		t.Fatalf("op error = %v", err)
	}

	all := h.e.Bookmarks()
	if len(all) != 1 {
		t.Fatalf("got %d bookmarks, want 1", len(all))
	}
	if all[0].ID == added.ID || all[0].ClientRef != added.ID {
		t.Errorf("server id not merged: id=%s clientRef=%s temp=%s", all[0].ID, all[0].ClientRef, added.ID)
	}
	if all[0].Status != domain.StatusReady {
		t.Errorf("Status = %s, want ready", all[0].Status)
	}

	_, _, err = h.e.AddBookmark(ctx, AddRequest{URL: "https://example.com/"})
	var dup *domain.DuplicateURLError
	if !errors.As(err, &dup) || dup.ExistingID != all[0].ID {
		t.Fatalf("second add error = %v, want duplicate of %s", err, all[0].ID)
	}
	if h.fake.Calls(remotetest.OpInsertBookmark) != 1 {
		t.Errorf("duplicate reached the store")
	}

	_, op, err = h.e.AddBookmark(ctx, AddRequest{URL: "https://example.com/", AllowDuplicate: true})
	if err != nil {
		t.Fatalf("add anyway error = %v", err)
	}
	_ = wait(t, op)
	if len(h.e.Bookmarks()) != 2 {
		t.Errorf("add anyway should insert a second record")
	}
}

func TestAddBookmarkValidation(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name string
		req  AddRequest
		want error
	}{
		{name: "empty url", req: AddRequest{URL: "  "}, want: domain.ErrValidation},
		{name: "bad scheme", req: AddRequest{URL: "ftp://x.io"}, want: domain.ErrValidation},
		{name: "unknown group", req: AddRequest{URL: "x.io", GroupID: domain.String("nope")}, want: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, op, err := h.e.AddBookmark(context.Background(), tt.req)
			if !errors.Is(err, tt.want) || op != nil {
				t.Errorf("AddBookmark() = %v, want %v", err, tt.want)
			}
		})
	}
	if h.fake.Calls(remotetest.OpInsertBookmark) != 0 {
		t.Error("rejected input reached the store")
	}
}

func TestAddBookmarkPrependsAboveEverything(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 3)

	for i := 0; i < 5; i++ {
		added, op, err := h.e.AddBookmark(context.Background(), AddRequest{URL: fmt.Sprintf("new%d.io", i)})
		if err != nil {
			t.Fatalf("AddBookmark() error = %v", err)
		}
		_ = wait(t, op)
		for _, b := range h.e.Bookmarks() {
			if b.ClientRef == added.ID {
				continue
			}
			if *added.OrderIndex >= *b.OrderIndex {
				t.Fatalf("prepended index %d is not below %s (%d)", *added.OrderIndex, b.ID, *b.OrderIndex)
			}
		}
	}
	if first := h.e.Bookmarks()[0]; first.URL != "new4.io" {
		t.Errorf("most recent add should sort first, got %s", first.URL)
	}
}

func TestAddBookmarkInsertFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.FailNext(remotetest.OpInsertBookmark, errors.New("network down"))

	added, op, err := h.e.AddBookmark(context.Background(), AddRequest{URL: "x.io"})
	if err != nil {
		t.Fatalf("AddBookmark() error = %v", err)
	}
	if err := wait(t, op); err == nil {
		t.Fatal("op should report the insert failure")
	}

	b, ok := h.e.Collection().Bookmark(added.ID)
	if !ok {
		t.Fatal("optimistic record should stay in place")
	}
	if b.Status != domain.StatusFailed || !strings.Contains(b.ErrorReason, "network down") {
		t.Errorf("record = %s/%q, want failed with reason", b.Status, b.ErrorReason)
	}
	if len(h.failures()) == 0 {
		t.Error("failure should be notified")
	}

	if err := h.e.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if _, ok := h.e.Collection().Bookmark(added.ID); !ok {
		t.Fatal("reload dropped the unsynced record")
	}

	_, op, err = h.e.RetryEnrichment(context.Background(), added.ID)
	if err != nil {
		t.Fatalf("RetryEnrichment() error = %v", err)
	}
	if err := wait(t, op); err != nil {
		t.Fatalf("retry op error = %v", err)
	}
	all := h.e.Bookmarks()
	if len(all) != 1 || all[0].Status != domain.StatusReady || all[0].ID == added.ID {
		t.Errorf("after retry: %+v", all[0])
	}
}

func TestEnrichment(t *testing.T) {
	ex := metadata.ExtractorFunc(func(ctx context.Context, rawURL string) (metadata.Metadata, error) {
		if strings.Contains(rawURL, "broken") {
			return metadata.Metadata{}, errors.New("timeout")
		}
		return metadata.Metadata{Title: "Fetched", Description: "desc"}, nil
	})
	h := newHarness(t, ex)
	ctx := context.Background()

	_, op, _ := h.e.AddBookmark(ctx, AddRequest{URL: "ok.io"})
	_ = wait(t, op)
	_, op2, _ := h.e.AddBookmark(ctx, AddRequest{URL: "named.io", Title: "Mine"})
	_ = wait(t, op2)
	_, op3, _ := h.e.AddBookmark(ctx, AddRequest{URL: "broken.io"})
	if err := wait(t, op3); err == nil {
		t.Error("enrichment failure should surface on the op")
	}

	byURL := map[string]*domain.Bookmark{}
	for _, b := range h.e.Bookmarks() {
		byURL[b.NormalizedURL] = b
	}
	if b := byURL["https://ok.io"]; b.Title != "Fetched" || b.Status != domain.StatusReady {
		t.Errorf("ok.io = %q/%s", b.Title, b.Status)
	}
	if b := byURL["https://named.io"]; b.Title != "Mine" {
		t.Errorf("user title overwritten: %q", b.Title)
	}
	if b := byURL["https://broken.io"]; b.Status != domain.StatusFailed || b.ErrorReason == "" {
		t.Errorf("broken.io = %s/%q", b.Status, b.ErrorReason)
	}

	stored, _ := h.fake.StoredBookmark(owner, byURL["https://ok.io"].ID)
	if stored.Title != "Fetched" || stored.Status != domain.StatusReady {
		t.Errorf("metadata not persisted: %+v", stored)
	}
}

// ─────────────────────────────────────────────────────────────────
// Update / move
// ─────────────────────────────────────────────────────────────────

func TestUpdateBookmarkRollsBackOnFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 2)
	h.fake.FailNext(remotetest.OpUpdateBookmark, errors.New("500"))

	got, op, err := h.e.UpdateBookmark(context.Background(), "b1", domain.BookmarkPatch{Title: domain.String("renamed")})
	if err != nil {
		t.Fatalf("UpdateBookmark() error = %v", err)
	}
	if got.Title != "renamed" {
		t.Errorf("local update not applied synchronously: %q", got.Title)
	}
	if err := wait(t, op); err == nil {
		t.Fatal("op should fail")
	}

	b, _ := h.e.Collection().Bookmark("b1")
	if b.Title != "https://site1.io" {
		t.Errorf("Title after rollback = %q", b.Title)
	}
	if len(h.failures()) != 1 {
		t.Errorf("want one error notification, got %d", len(h.failures()))
	}
}

func TestUpdateBookmarkValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 1)

	if _, _, err := h.e.UpdateBookmark(context.Background(), "b1", domain.BookmarkPatch{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty patch error = %v", err)
	}
	if _, _, err := h.e.UpdateBookmark(context.Background(), "zz", domain.BookmarkPatch{Title: domain.String("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id error = %v", err)
	}
}

func TestMoveBookmarksPartialFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SeedGroups(owner, domain.Group{ID: "g1", Name: "Work", Icon: "folder"})
	h.seed(t, 3)
	h.fake.FailID(remotetest.OpUpdateBookmark, "b2", errors.New("denied"))

	op, err := h.e.MoveBookmarks(context.Background(), []string{"b1", "b2", "b3"}, "g1")
	if err != nil {
		t.Fatalf("MoveBookmarks() error = %v", err)
	}
	err = wait(t, op)
	var batch *domain.BatchError
	if !errors.As(err, &batch) || batch.FailedCount() != 1 {
		t.Fatalf("op error = %v, want one failure", err)
	}

	for _, tt := range []struct {
		id      string
		grouped bool
	}{{"b1", true}, {"b2", false}, {"b3", true}} {
		b, _ := h.e.Collection().Bookmark(tt.id)
		if b.InGroup("g1") != tt.grouped {
			t.Errorf("%s grouped = %v, want %v", tt.id, b.InGroup("g1"), tt.grouped)
		}
	}
}

// ─────────────────────────────────────────────────────────────────
// Delete / undo
// ─────────────────────────────────────────────────────────────────

func TestBulkDeleteThenUndo(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 5)
	ctx := context.Background()
	original := ids(h.e.Bookmarks())

	entry, op, err := h.e.DeleteBookmarks(ctx, []string{"b2", "b4"})
	if err != nil {
		t.Fatalf("DeleteBookmarks() error = %v", err)
	}
	if got := ids(h.e.Bookmarks()); got != "b1,b3,b5" {
		t.Errorf("after delete = %s", got)
	}
	if err := wait(t, op); err != nil {
		t.Fatalf("delete op error = %v", err)
	}
	if _, ok := h.fake.StoredBookmark(owner, "b2"); ok {
		t.Error("b2 still stored")
	}

	undoOp, err := h.e.Undo(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := ids(h.e.Bookmarks()); got != original {
		t.Errorf("after undo = %s, want %s", got, original)
	}
	if err := wait(t, undoOp); err != nil {
		t.Fatalf("undo op error = %v", err)
	}
	if _, ok := h.fake.StoredBookmark(owner, "b4"); !ok {
		t.Error("b4 not restored remotely")
	}

	if _, err := h.e.Undo(ctx, entry.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second undo error = %v, want not found", err)
	}
}

func TestUndoRestoresPositionClamped(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 4)
	ctx := context.Background()

	entry, op, _ := h.e.DeleteBookmarks(ctx, []string{"b4"})
	_ = wait(t, op)
	_, op, _ = h.e.DeleteBookmarks(ctx, []string{"b1", "b2"})
	_ = wait(t, op)

	undoOp, err := h.e.Undo(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	_ = wait(t, undoOp)

	// b4 was at position 3; only one item is left, so it lands at min(3, 1).
	if got := ids(h.e.Bookmarks()); got != "b3,b4" {
		t.Errorf("after undo = %s, want b3,b4", got)
	}
}

func TestUndoRestoreFailureKeepsRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 2)
	ctx := context.Background()

	entry, op, _ := h.e.DeleteBookmarks(ctx, []string{"b1"})
	_ = wait(t, op)
	h.fake.FailNext(remotetest.OpRestoreBookmark, errors.New("offline"))

	undoOp, _ := h.e.Undo(ctx, entry.ID)
	if err := wait(t, undoOp); err == nil {
		t.Fatal("undo op should report the failed restore")
	}
	if _, ok := h.e.Collection().Bookmark("b1"); !ok {
		t.Error("restored record vanished after remote failure")
	}
	if len(h.failures()) == 0 {
		t.Error("restore failure should be notified")
	}
}

func TestDeleteFailurePutsItemBack(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 3)
	h.fake.FailID(remotetest.OpDeleteBookmark, "b3", errors.New("locked"))

	_, op, err := h.e.DeleteBookmarks(context.Background(), []string{"b2", "b3"})
	if err != nil {
		t.Fatalf("DeleteBookmarks() error = %v", err)
	}
	err = wait(t, op)
	var batch *domain.BatchError
	if !errors.As(err, &batch) || batch.FailedCount() != 1 || batch.Total != 2 {
		t.Fatalf("op error = %v", err)
	}
	if got := ids(h.e.Bookmarks()); got != "b1,b3" {
		t.Errorf("after partial failure = %s, want b1,b3", got)
	}
}

func TestDeleteWhileInsertInFlight(t *testing.T) {
	h := newHarness(t, nil)
	release := h.fake.Hold(remotetest.OpInsertBookmark)
	ctx := context.Background()

	added, addOp, _ := h.e.AddBookmark(ctx, AddRequest{URL: "fast.io"})
	_, delOp, err := h.e.DeleteBookmarks(ctx, []string{added.ID})
	if err != nil {
		t.Fatalf("DeleteBookmarks() error = %v", err)
	}
	release()

	_ = wait(t, addOp)
	if err := wait(t, delOp); err != nil {
		t.Fatalf("delete op error = %v", err)
	}
	if n := len(h.e.Bookmarks()); n != 0 {
		t.Errorf("%d bookmarks left locally", n)
	}
	list, _ := h.fake.ListBookmarks(ctx, owner)
	if len(list) != 0 {
		t.Errorf("store still holds %d bookmarks", len(list))
	}
}

func TestDeleteDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SeedBookmarks(owner,
		domain.Bookmark{ID: "old", URL: "https://a.io", NormalizedURL: "https://a.io", CreatedAt: base},
		domain.Bookmark{ID: "new", URL: "https://a.io/", NormalizedURL: "https://a.io", CreatedAt: base.Add(time.Hour)},
		domain.Bookmark{ID: "solo", URL: "https://b.io", NormalizedURL: "https://b.io", CreatedAt: base},
	)
	_ = h.e.Load(context.Background())

	if sets := h.e.Duplicates(); len(sets) != 1 || sets[0].Keep.ID != "old" {
		t.Fatalf("Duplicates() = %+v", sets)
	}
	if c := h.e.CheckDuplicate("a.io"); c == nil || c.ExistingID != "old" {
		t.Errorf("CheckDuplicate() = %+v", c)
	}

	_, op, err := h.e.DeleteDuplicates(context.Background())
	if err != nil {
		t.Fatalf("DeleteDuplicates() error = %v", err)
	}
	_ = wait(t, op)
	if _, ok := h.e.Collection().Bookmark("new"); ok {
		t.Error("newer duplicate should be deleted")
	}
	if len(h.e.Duplicates()) != 0 {
		t.Error("duplicates remain")
	}
}

// ─────────────────────────────────────────────────────────────────
// Reorder
// ─────────────────────────────────────────────────────────────────

func TestReorderScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SeedBookmarks(owner,
		domain.Bookmark{ID: "A", URL: "https://a.io", OrderIndex: domain.Int64(-10), CreatedAt: base},
		domain.Bookmark{ID: "B", URL: "https://b.io", OrderIndex: domain.Int64(7), CreatedAt: base},
		domain.Bookmark{ID: "C", URL: "https://c.io", OrderIndex: domain.Int64(99), CreatedAt: base},
	)
	_ = h.e.Load(context.Background())

	op, err := h.e.ReorderBookmarks(context.Background(), []string{"C", "A", "B"})
	if err != nil {
		t.Fatalf("ReorderBookmarks() error = %v", err)
	}
	if got := ids(h.e.Bookmarks()); got != "C,A,B" {
		t.Errorf("local order = %s", got)
	}
	if err := wait(t, op); err != nil {
		t.Fatalf("op error = %v", err)
	}
	if h.fake.Calls(remotetest.OpReorderBookmarks) != 1 {
		t.Errorf("reorder should be a single batched call")
	}
	for id, want := range map[string]int64{"C": 0, "A": 1, "B": 2} {
		stored, _ := h.fake.StoredBookmark(owner, id)
		if stored.OrderIndex == nil || *stored.OrderIndex != want {
			t.Errorf("%s stored index = %v, want %d", id, stored.OrderIndex, want)
		}
	}
}

func TestReorderFailureKeepsLocalOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 3)
	h.fake.FailNext(remotetest.OpReorderBookmarks, errors.New("timeout"))

	op, _ := h.e.ReorderBookmarks(context.Background(), []string{"b3", "b2", "b1"})
	if err := wait(t, op); err == nil {
		t.Fatal("op should fail")
	}
	if got := ids(h.e.Bookmarks()); got != "b3,b2,b1" {
		t.Errorf("local order = %s, want b3,b2,b1", got)
	}
	if len(h.failures()) != 1 {
		t.Errorf("want one error notification")
	}
}

func TestReorderRejectsForeignIDs(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 2)

	if _, err := h.e.ReorderBookmarks(context.Background(), []string{"b1", "someone-else"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want validation", err)
	}
}

// ─────────────────────────────────────────────────────────────────
// Groups
// ─────────────────────────────────────────────────────────────────

func TestCreateAndRenameGroup(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	work, err := h.e.CreateGroup(ctx, GroupInput{Name: " Work "})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if work.ID == "" || work.Name != "Work" || work.Icon != domain.DefaultGroupIcon {
		t.Errorf("CreateGroup() = %+v", work)
	}
	home, _ := h.e.CreateGroup(ctx, GroupInput{Name: "Home"})
	if *home.OrderIndex <= *work.OrderIndex {
		t.Errorf("new group should be appended")
	}

	if _, err := h.e.CreateGroup(ctx, GroupInput{Name: "work"}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate name error = %v", err)
	}
	if _, err := h.e.CreateGroup(ctx, GroupInput{Name: "  "}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank name error = %v", err)
	}
	if _, err := h.e.UpdateGroup(ctx, home.ID, domain.GroupPatch{Name: domain.String("WORK")}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("rename to taken name error = %v", err)
	}

	h.fake.FailNext(remotetest.OpUpdateGroup, errors.New("boom"))
	if _, err := h.e.UpdateGroup(ctx, home.ID, domain.GroupPatch{Name: domain.String("House")}); err == nil {
		t.Fatal("UpdateGroup() should fail")
	}
	if g, _ := h.e.Collection().Group(home.ID); g.Name != "Home" {
		t.Errorf("rename not rolled back: %q", g.Name)
	}
}

func TestDeleteGroupScenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.fake.SeedGroups(owner, domain.Group{ID: "g1", Name: "Reading", Icon: "book", OrderIndex: domain.Int64(0)})
	for i := 1; i <= 4; i++ {
		h.fake.SeedBookmarks(owner, domain.Bookmark{
			ID:        fmt.Sprintf("m%d", i),
			URL:       fmt.Sprintf("https://m%d.io", i),
			GroupID:   domain.String("g1"),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = h.e.Load(ctx)

	entry, err := h.e.DeleteGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	if h.e.Collection().GroupCount() != 0 {
		t.Error("group still present")
	}
	all := h.e.Bookmarks()
	if len(all) != 4 {
		t.Fatalf("members were deleted: %d left", len(all))
	}
	for _, b := range all {
		if b.GroupID != nil {
			t.Errorf("%s still grouped", b.ID)
		}
		stored, _ := h.fake.StoredBookmark(owner, b.ID)
		if stored.GroupID != nil {
			t.Errorf("%s still grouped remotely", b.ID)
		}
	}

	op, err := h.e.Undo(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if err := wait(t, op); err != nil {
		t.Fatalf("undo op error = %v", err)
	}
	if _, ok := h.e.Collection().Group("g1"); !ok {
		t.Error("group not restored")
	}
	if _, ok := h.fake.StoredGroup(owner, "g1"); !ok {
		t.Error("group not restored remotely")
	}
	for _, b := range h.e.Bookmarks() {
		if !b.InGroup("g1") {
			t.Errorf("%s lost its group after undo", b.ID)
		}
		stored, _ := h.fake.StoredBookmark(owner, b.ID)
		if !stored.InGroup("g1") {
			t.Errorf("%s not regrouped remotely", b.ID)
		}
	}
}

func TestDeleteGroupRemoteFailureRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SeedGroups(owner, domain.Group{ID: "g1", Name: "Keep"})
	h.fake.SeedBookmarks(owner, domain.Bookmark{ID: "m1", URL: "https://m1.io", GroupID: domain.String("g1"), CreatedAt: base})
	_ = h.e.Load(context.Background())
	h.fake.FailNext(remotetest.OpDeleteGroup, errors.New("fk violation"))

	if _, err := h.e.DeleteGroup(context.Background(), "g1"); err == nil {
		t.Fatal("DeleteGroup() should fail")
	}
	if _, ok := h.e.Collection().Group("g1"); !ok {
		t.Error("group not put back")
	}
	if b, _ := h.e.Collection().Bookmark("m1"); !b.InGroup("g1") {
		t.Error("member not regrouped")
	}
	if h.e.Ledger().Len() != 0 {
		t.Error("undo entry of a failed delete should be invalidated")
	}
}

func TestReorderGroups(t *testing.T) {
	h := newHarness(t, nil)
	h.fake.SeedGroups(owner,
		domain.Group{ID: "x", Name: "X", OrderIndex: domain.Int64(0)},
		domain.Group{ID: "y", Name: "Y", OrderIndex: domain.Int64(1)},
	)
	_ = h.e.Load(context.Background())

	op, err := h.e.ReorderGroups(context.Background(), []string{"y", "x"})
	if err != nil {
		t.Fatalf("ReorderGroups() error = %v", err)
	}
	_ = wait(t, op)
	if g := h.e.Groups(); g[0].ID != "y" {
		t.Errorf("first group = %s, want y", g[0].ID)
	}
}

func TestReloadHidesInFlightDeletes(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, 2)
	release := h.fake.Hold(remotetest.OpDeleteBookmark)
	defer release()

	_, _, _ = h.e.DeleteBookmarks(context.Background(), []string{"b1"})
	if err := h.e.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if _, ok := h.e.Collection().Bookmark("b1"); ok {
		t.Error("reload resurrected a bookmark being deleted")
	}
}
