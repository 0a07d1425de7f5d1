package dedup

import (
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

func bm(id, url string, created time.Time) *domain.Bookmark {
	b := &domain.Bookmark{ID: id, URL: url, CreatedAt: created}
	b.Fill(created)
	return b
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		in   *domain.Bookmark
		want string
	}{
		{name: "normalized wins", in: &domain.Bookmark{URL: "x.io", NormalizedURL: "https://y.io"}, want: "https://y.io"},
		{name: "computed from url", in: &domain.Bookmark{URL: "Example.com/"}, want: "https://example.com"},
		{name: "empty", in: &domain.Bookmark{}, want: ""},
		{name: "nil", in: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.in); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindKeepsEarliest(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []*domain.Bookmark{
		bm("new", "https://a.io/", base.Add(2*time.Hour)),
		bm("old", "a.io", base),
		bm("mid", "HTTPS://A.IO", base.Add(time.Hour)),
		bm("solo", "b.io", base),
		{ID: "blank"},
		{ID: "blank2"},
	}

	sets := Find(items)
	if len(sets) != 1 {
		t.Fatalf("Find() returned %d sets, want 1", len(sets))
	}
	s := sets[0]
	if s.Keep.ID != "old" {
		t.Errorf("Keep = %s, want old", s.Keep.ID)
	}
	if s.Size() != 3 {
		t.Errorf("Size() = %d, want 3", s.Size())
	}

	sel := DefaultSelection(sets)
	if len(sel) != 2 || sel[0] != "mid" || sel[1] != "new" {
		t.Errorf("DefaultSelection() = %v, want [mid new]", sel)
	}
}

func TestFindTieBreaksOnID(t *testing.T) {
	at := time.Now()
	sets := Find([]*domain.Bookmark{bm("b", "x.io", at), bm("a", "x.io", at)})
	if len(sets) != 1 || sets[0].Keep.ID != "a" {
		t.Fatalf("equal createdAt should keep the lowest id, got %+v", sets)
	}
}

func TestCheck(t *testing.T) {
	existing := []*domain.Bookmark{bm("1", "example.com", time.Now())}

	c := Check(existing, "https://example.com/")
	if c == nil || c.ExistingID != "1" {
		t.Fatalf("Check() = %+v, want conflict with 1", c)
	}
	if !errors.Is(c.Err(), domain.ErrConflict) {
		t.Errorf("Err() should be a conflict")
	}

	if c := Check(existing, "https://example.com/other"); c != nil {
		t.Errorf("Check() = %+v, want nil", c)
	}
	if c := Check(existing, ""); c != nil {
		t.Errorf("empty url should never conflict")
	}
}

func TestBatchFlagsRowsWithinSameFile(t *testing.T) {
	b := NewBatch([]*domain.Bookmark{bm("live", "live.io", time.Now())})

	if c := b.Check("https://live.io"); c == nil || c.ExistingID != "live" {
		t.Errorf("live duplicate not detected: %+v", c)
	}

	if c := b.Check("new.io"); c != nil {
		t.Fatalf("first occurrence flagged: %+v", c)
	}
	b.Accept("New", "new.io")
	if c := b.Check("https://new.io/"); c == nil {
		t.Errorf("second occurrence in the same batch should be flagged")
	}
}
