// Package undo keeps a bounded, time-limited history of destructive edits so
// they can be reversed.
package undo

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// Kind tells what an entry reverses.
type Kind string

const (
	// KindBookmarks reverses a single or bulk bookmark delete.
	KindBookmarks Kind = "bookmarks"
	// KindGroup reverses a group delete and the ungrouping of its members.
	KindGroup Kind = "group"
)

// Snapshot is a bookmark as it was right before the edit, with its display
// position at that time.
type Snapshot struct {
	Bookmark domain.Bookmark `json:"bookmark"`
	Position int             `json:"position"`
}

// GroupSnapshot is a group as it was right before deletion.
type GroupSnapshot struct {
	Group    domain.Group `json:"group"`
	Position int          `json:"position"`
}

// Entry is one reversible edit.
type Entry struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Bookmarks []Snapshot     `json:"bookmarks,omitempty"`
	Group     *GroupSnapshot `json:"group,omitempty"`
	// Reassigned holds the members a group delete moved out of the group,
	// with their original GroupID.
	Reassigned []Snapshot `json:"reassigned,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

// Expired reports whether the reversal window has closed at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// IDs returns the bookmark ids the entry would restore.
func (e Entry) IDs() []string {
	ids := make([]string, 0, len(e.Bookmarks)+len(e.Reassigned))
	for _, s := range e.Bookmarks {
		ids = append(ids, s.Bookmark.ID)
	}
	for _, s := range e.Reassigned {
		ids = append(ids, s.Bookmark.ID)
	}
	return ids
}

// Ledger is a ring of at most capacity entries. Recording into a full
// ledger evicts the oldest entry.
type Ledger struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	window   time.Duration
	now      func() time.Time
}

// New creates a ledger. Non-positive values fall back to 20 entries and 10s.
func New(capacity int, window time.Duration) *Ledger {
	if capacity <= 0 {
		capacity = 20
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Ledger{capacity: capacity, window: window, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Window returns the reversal window.
func (l *Ledger) Window() time.Duration {
	return l.window
}

// Record stores e, assigning its id and validity window.
func (l *Ledger) Record(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.ExpiresAt = now.Add(l.window)

	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	return e
}

// Take removes and returns the entry if it is still valid.
func (l *Ledger) Take(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(id)
	if i < 0 {
		return Entry{}, false
	}
	e := l.entries[i]
	l.remove(i)
	if e.Expired(l.now()) {
		return Entry{}, false
	}
	return e, true
}

// Peek returns the entry without removing it.
func (l *Ledger) Peek(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(id)
	if i < 0 || l.entries[i].Expired(l.now()) {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Latest returns the most recent valid entry.
func (l *Ledger) Latest() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if !l.entries[i].Expired(now) {
			return l.entries[i], true
		}
	}
	return Entry{}, false
}

// Invalidate drops an entry, e.g. once its edit was rolled back.
func (l *Ledger) Invalidate(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(id)
	if i < 0 {
		return false
	}
	l.remove(i)
	return true
}

// Sweep drops every entry expired at now and returns how many went.
func (l *Ledger) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, e := range l.entries {
		if !e.Expired(now) {
			kept = append(kept, e)
		}
	}
	removed := len(l.entries) - len(kept)
	l.entries = kept
	return removed
}

// Len returns the number of entries held, expired or not.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

func (l *Ledger) find(id string) int {
	for i, e := range l.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) remove(i int) {
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
}
