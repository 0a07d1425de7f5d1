package domain

import (
	"testing"
	"time"
)

func TestSortBookmarks(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*Bookmark{
		{ID: "null-old", CreatedAt: base},
		{ID: "two", OrderIndex: Int64(2), CreatedAt: base},
		{ID: "null-new", CreatedAt: base.Add(time.Hour)},
		{ID: "one-old", OrderIndex: Int64(1), CreatedAt: base},
		{ID: "one-new", OrderIndex: Int64(1), CreatedAt: base.Add(time.Minute)},
		{ID: "neg", OrderIndex: Int64(-5), CreatedAt: base},
	}

	SortBookmarks(items)

	want := []string{"neg", "one-new", "one-old", "two", "null-new", "null-old"}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, items[i].ID, id)
		}
	}
}

func TestSortBookmarksTieOnID(t *testing.T) {
	at := time.Now()
	items := []*Bookmark{
		{ID: "b", OrderIndex: Int64(0), CreatedAt: at},
		{ID: "a", OrderIndex: Int64(0), CreatedAt: at},
	}
	SortBookmarks(items)
	if items[0].ID != "a" {
		t.Errorf("equal index and createdAt should fall back to id, got %s first", items[0].ID)
	}
}

func TestMarkFailedAlwaysCarriesReason(t *testing.T) {
	b := &Bookmark{Status: StatusPending}
	b.MarkFailed("  ")
	if b.Status != StatusFailed || b.ErrorReason == "" {
		t.Errorf("MarkFailed() = %s/%q, want failed with a reason", b.Status, b.ErrorReason)
	}

	b.MarkReady()
	if b.Status != StatusReady || b.ErrorReason != "" {
		t.Errorf("MarkReady() = %s/%q, want ready without reason", b.Status, b.ErrorReason)
	}
}

func TestFillDefaults(t *testing.T) {
	now := time.Now()
	b := &Bookmark{ID: "x", URL: " example.com/ ", Status: "bogus", GroupID: String("")}
	b.Fill(now)

	if b.NormalizedURL != "https://example.com" {
		t.Errorf("NormalizedURL = %q", b.NormalizedURL)
	}
	if b.Title != b.NormalizedURL {
		t.Errorf("Title = %q, want it to default to the normalized url", b.Title)
	}
	if b.Status != StatusReady {
		t.Errorf("Status = %q, want ready", b.Status)
	}
	if !b.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", b.CreatedAt, now)
	}
	if b.GroupID != nil {
		t.Errorf("empty GroupID should become nil")
	}
}

func TestBookmarkPatchApply(t *testing.T) {
	b := &Bookmark{ID: "x", NormalizedURL: "https://a.io", Title: "old", GroupID: String("g1")}

	BookmarkPatch{Title: String(""), GroupID: String("")}.Apply(b)
	if b.Title != "https://a.io" {
		t.Errorf("empty title should fall back to normalized url, got %q", b.Title)
	}
	if b.GroupID != nil {
		t.Errorf("empty group id should ungroup")
	}

	failed := StatusFailed
	BookmarkPatch{Status: &failed}.Apply(b)
	if b.ErrorReason == "" {
		t.Errorf("failed status must carry a reason")
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := &Bookmark{ID: "x", GroupID: String("g"), OrderIndex: Int64(3)}
	c := b.Clone()
	*c.GroupID = "other"
	*c.OrderIndex = 9
	if *b.GroupID != "g" || *b.OrderIndex != 3 {
		t.Errorf("Clone() shares pointers with the original")
	}
}

func TestGroupNames(t *testing.T) {
	if NormalizeGroupName("  Work ") != NormalizeGroupName("work") {
		t.Error("group names should compare case-insensitively after trimming")
	}
	if err := ValidateGroupName("   "); err == nil {
		t.Error("blank group name should be rejected")
	}
}
