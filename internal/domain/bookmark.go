package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a bookmark.
type Status string

const (
	// StatusPending is set the instant a URL is submitted, before the
	// remote store and the metadata extractor have answered.
	StatusPending Status = "pending"
	// StatusReady means metadata extraction succeeded.
	StatusReady Status = "ready"
	// StatusFailed means extraction or persistence failed; ErrorReason is set.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

// Bookmark is a saved URL owned by a single user.
type Bookmark struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// ID is server-assigned, or client-generated for an optimistic insert.
	ID string `json:"id"`

	// ClientRef carries the temporary local id through the remote store and
	// back so the realtime echo can be matched by identity, not by content.
	ClientRef string `json:"clientRef,omitempty"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// URL is the address as entered by the user.
	URL string `json:"url"`

	// NormalizedURL is the dedup key, see NormalizeURL.
	NormalizedURL string `json:"normalizedUrl"`

	// Title is never empty, it defaults to NormalizedURL.
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	FaviconURL      string `json:"faviconUrl,omitempty"`
	OGImageURL      string `json:"ogImageUrl,omitempty"`
	PreviewImageURL string `json:"previewImageUrl,omitempty"`

	// ─────────────────────────────
	// Placement
	// ─────────────────────────────

	// GroupID is a back-reference only; nil means ungrouped.
	GroupID *string `json:"groupId"`

	// OrderIndex defines display order, lower first. Gaps are expected.
	OrderIndex *int64 `json:"orderIndex"`

	// ─────────────────────────────
	// Lifecycle
	// ─────────────────────────────

	Status      Status    `json:"status"`
	ErrorReason string    `json:"errorReason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Clone returns a deep copy of b.
func (b *Bookmark) Clone() *Bookmark {
	if b == nil {
		return nil
	}
	c := *b
	c.GroupID = cloneString(b.GroupID)
	c.OrderIndex = cloneInt64(b.OrderIndex)
	return &c
}

// MarkReady moves the bookmark to ready and clears any failure reason.
func (b *Bookmark) MarkReady() {
	b.Status = StatusReady
	b.ErrorReason = ""
}

// MarkFailed moves the bookmark to failed. A failed bookmark always carries a reason.
func (b *Bookmark) MarkFailed(reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	b.Status = StatusFailed
	b.ErrorReason = reason
}

// Href is the URL ready to fetch or open.
func (b *Bookmark) Href() string { return QualifyURL(b.URL) }

// Fill derives the computed fields and restores the invariants of a
// bookmark coming from an untrusted source.
func (b *Bookmark) Fill(now time.Time) {
	b.URL = strings.TrimSpace(b.URL)
	if b.NormalizedURL == "" && b.URL != "" {
		b.NormalizedURL = NormalizeURL(b.URL)
	}
	if strings.TrimSpace(b.Title) == "" {
		b.Title = b.NormalizedURL
	}
	if !b.Status.Valid() {
		b.Status = StatusReady
	}
	if b.Status == StatusFailed && b.ErrorReason == "" {
		b.ErrorReason = "unknown error"
	}
	if b.Status != StatusFailed {
		b.ErrorReason = ""
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.GroupID != nil && *b.GroupID == "" {
		b.GroupID = nil
	}
}

// InGroup reports whether the bookmark belongs to groupID.
func (b *Bookmark) InGroup(groupID string) bool {
	return b.GroupID != nil && *b.GroupID == groupID
}

// BookmarkPatch is a partial update. Nil fields are left untouched.
// A non-nil GroupID pointing at "" moves the bookmark out of its group.
type BookmarkPatch struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	FaviconURL      *string `json:"faviconUrl,omitempty"`
	OGImageURL      *string `json:"ogImageUrl,omitempty"`
	PreviewImageURL *string `json:"previewImageUrl,omitempty"`
	GroupID         *string `json:"groupId,omitempty"`
	OrderIndex      *int64  `json:"orderIndex,omitempty"`
	Status          *Status `json:"status,omitempty"`
	ErrorReason     *string `json:"errorReason,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p BookmarkPatch) Empty() bool {
	return p == BookmarkPatch{}
}

// Apply writes the patch onto b.
func (p BookmarkPatch) Apply(b *Bookmark) {
	if p.Title != nil {
		b.Title = strings.TrimSpace(*p.Title)
		if b.Title == "" {
			b.Title = b.NormalizedURL
		}
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.FaviconURL != nil {
		b.FaviconURL = *p.FaviconURL
	}
	if p.OGImageURL != nil {
		b.OGImageURL = *p.OGImageURL
	}
	if p.PreviewImageURL != nil {
		b.PreviewImageURL = *p.PreviewImageURL
	}
	if p.GroupID != nil {
		if *p.GroupID == "" {
			b.GroupID = nil
		} else {
			b.GroupID = cloneString(p.GroupID)
		}
	}
	if p.OrderIndex != nil {
		b.OrderIndex = cloneInt64(p.OrderIndex)
	}
	if p.Status != nil {
		switch *p.Status {
		case StatusFailed:
			reason := ""
			if p.ErrorReason != nil {
				reason = *p.ErrorReason
			}
			b.MarkFailed(reason)
		case StatusReady:
			b.MarkReady()
		case StatusPending:
			b.Status = StatusPending
			b.ErrorReason = ""
		}
	}
}

// Position assigns an order index to an item id.
type Position struct {
	ID    string `json:"id"`
	Index int64  `json:"position"`
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
