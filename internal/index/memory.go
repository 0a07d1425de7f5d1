package index

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// ChangeFunc is called after every committed transition, outside the lock.
type ChangeFunc func(version uint64, source string)

// Collection is the single shared in-memory copy of one user's bookmarks and
// groups. Local optimistic mutations and realtime merges all go through
// Update, so no two transitions ever interleave.
type Collection struct {
	mu         sync.RWMutex
	state      State
	version    uint64
	loaded     bool
	lastReload time.Time // Timestamp of last full snapshot
	onChange   []ChangeFunc
}

// NewCollection creates an empty, not yet loaded collection
func NewCollection() *Collection {
	return &Collection{}
}

// OnChange registers a hook run after every committed transition.
func (c *Collection) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onChange = append(c.onChange, fn)
}

// Update runs fn as one atomic transition. When fn returns an error the
// transition is still visible (fn mutates in place) but no change is
// announced; callers validate before mutating.
func (c *Collection) Update(source string, fn func(*State) error) error {
	c.mu.Lock()
	if err := fn(&c.state); err != nil {
		c.mu.Unlock()
		return err
	}
	c.version++
	v := c.version
	hooks := c.onChange
	c.mu.Unlock()

	for _, h := range hooks {
		h(v, source)
	}
	return nil
}

// View runs fn with read access. fn must not keep references past return.
func (c *Collection) View(fn func(*State)) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fn(&c.state)
}

// Replace installs a full snapshot and marks the collection loaded
func (c *Collection) Replace(bookmarks []*domain.Bookmark, groups []*domain.Group, source string) {
	_ = c.Update(source, func(s *State) error {
		s.Bookmarks = bookmarks
		s.Groups = groups
		s.Sort()
		domain.SortGroups(s.Groups)
		c.loaded = true
		c.lastReload = time.Now()
		return nil
	})
}

// Snapshot returns a deep copy of the current state.
func (c *Collection) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state.Clone()
}

// Bookmarks returns copies of all bookmarks in display order.
func (c *Collection) Bookmarks() []*domain.Bookmark {
	return c.Snapshot().Bookmarks
}

// Groups returns copies of all groups in display order.
func (c *Collection) Groups() []*domain.Group {
	return c.Snapshot().Groups
}

// Bookmark retrieves a copy of a bookmark by ID
func (c *Collection) Bookmark(id string) (*domain.Bookmark, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.state.Bookmark(id)
	return b.Clone(), ok
}

// Group retrieves a copy of a group by ID
func (c *Collection) Group(id string) (*domain.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, ok := c.state.Group(id)
	return g.Clone(), ok
}

// Count returns the number of bookmarks in the collection
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.state.Bookmarks)
}

// GroupCount returns the number of groups in the collection
func (c *Collection) GroupCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.state.Groups)
}

// Version increases by one on every committed transition.
func (c *Collection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version
}

// Loaded reports whether an initial snapshot has been installed.
func (c *Collection) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loaded
}

// GetLastReload returns the timestamp of the last full snapshot
func (c *Collection) GetLastReload() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastReload
}

// PruneTombstones forgets tombstones older than before. Visible state does
// not change, so no transition is announced.
func (c *Collection) PruneTombstones(before time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.PruneTombstones(before)
}
