// Package remotetest provides an in-memory remote.Backend with failure
// injection for tests.
package remotetest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

// Operation names accepted by FailNext, FailAlways, FailID, Hold and Calls.
const (
	OpInsertBookmark   = "InsertBookmark"
	OpUpdateBookmark   = "UpdateBookmark"
	OpDeleteBookmark   = "DeleteBookmark"
	OpRestoreBookmark  = "RestoreBookmark"
	OpReorderBookmarks = "ReorderBookmarks"
	OpListBookmarks    = "ListBookmarks"
	OpInsertGroup      = "InsertGroup"
	OpUpdateGroup      = "UpdateGroup"
	OpDeleteGroup      = "DeleteGroup"
	OpRestoreGroup     = "RestoreGroup"
	OpReorderGroups    = "ReorderGroups"
	OpListGroups       = "ListGroups"
	OpPing             = "Ping"
)

// Fake is a goroutine-safe remote store. Writes publish events on the
// owner's channels unless the fake is silenced.
type Fake struct {
	mu        sync.Mutex
	bookmarks map[string]map[string]domain.Bookmark
	groups    map[string]map[string]domain.Group
	broker    *remote.Broker

	next   map[string][]error
	always map[string]error
	byID   map[string]map[string]error
	calls  map[string]int
	gates  map[string]chan struct{}
	silent bool
}

var _ remote.Backend = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		bookmarks: make(map[string]map[string]domain.Bookmark),
		groups:    make(map[string]map[string]domain.Group),
		broker:    remote.NewBroker(256),
		next:      make(map[string][]error),
		always:    make(map[string]error),
		byID:      make(map[string]map[string]error),
		calls:     make(map[string]int),
		gates:     make(map[string]chan struct{}),
	}
}

// ─────────────────────────────────────────────────────────────────
// Test controls
// ─────────────────────────────────────────────────────────────────

// FailNext makes the next call of op return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next[op] = append(f.next[op], err)
}

// FailAlways makes every call of op return err. A nil err clears it.
func (f *Fake) FailAlways(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.always, op)
		return
	}
	f.always[op] = err
}

// FailID makes calls of op on record id return err. Inserts are keyed by
// ClientRef for bookmarks and by name for groups.
func (f *Fake) FailID(op, id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID[op] == nil {
		f.byID[op] = make(map[string]error)
	}
	f.byID[op][id] = err
}

// Hold blocks calls of op until the returned release func runs.
func (f *Fake) Hold(op string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, op)
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// SetSilent stops (or resumes) event publication.
func (f *Fake) SetSilent(silent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = silent
}

// Emit publishes ev on the owner's channel as if another surface wrote it.
func (f *Fake) Emit(owner string, ev remote.Event) {
	f.broker.Publish(remote.Channel(owner, ev.Entity), ev)
}

// SeedBookmarks stores records without publishing.
func (f *Fake) SeedBookmarks(owner string, items ...domain.Bookmark) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range items {
		f.ownerBookmarks(owner)[b.ID] = b
	}
}

// SeedGroups stores groups without publishing.
func (f *Fake) SeedGroups(owner string, items ...domain.Group) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range items {
		f.ownerGroups(owner)[g.ID] = g
	}
}

// StoredBookmark returns the persisted record for id.
func (f *Fake) StoredBookmark(owner, id string) (domain.Bookmark, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookmarks[owner][id]
	return b, ok
}

// StoredGroup returns the persisted group for id.
func (f *Fake) StoredGroup(owner, id string) (domain.Group, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[owner][id]
	return g, ok
}

// ─────────────────────────────────────────────────────────────────
// Bookmarks
// ─────────────────────────────────────────────────────────────────

func (f *Fake) InsertBookmark(ctx context.Context, owner string, b domain.Bookmark) (domain.Bookmark, error) {
	if err := f.enter(ctx, OpInsertBookmark, b.ClientRef); err != nil {
		return domain.Bookmark{}, err
	}
	f.mu.Lock()
	b = *b.Clone()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, exists := f.ownerBookmarks(owner)[b.ID]; exists {
		f.mu.Unlock()
		return domain.Bookmark{}, &domain.ValidationError{Field: "id", Reason: "already exists"}
	}
	f.ownerBookmarks(owner)[b.ID] = b
	f.mu.Unlock()

	f.publish(owner, remote.KindInsert, remote.EntityBookmarks, b)
	return b, nil
}

func (f *Fake) UpdateBookmark(ctx context.Context, owner, id string, patch domain.BookmarkPatch) (domain.Bookmark, error) {
	if err := f.enter(ctx, OpUpdateBookmark, id); err != nil {
		return domain.Bookmark{}, err
	}
	f.mu.Lock()
	b, ok := f.ownerBookmarks(owner)[id]
	if !ok {
		f.mu.Unlock()
		return domain.Bookmark{}, &domain.NotFoundError{Entity: "bookmark", ID: id}
	}
	patch.Apply(&b)
	f.ownerBookmarks(owner)[id] = b
	f.mu.Unlock()

	f.publish(owner, remote.KindUpdate, remote.EntityBookmarks, b)
	return b, nil
}

func (f *Fake) DeleteBookmark(ctx context.Context, owner, id string) error {
	if err := f.enter(ctx, OpDeleteBookmark, id); err != nil {
		return err
	}
	f.mu.Lock()
	if _, ok := f.ownerBookmarks(owner)[id]; !ok {
		f.mu.Unlock()
		return &domain.NotFoundError{Entity: "bookmark", ID: id}
	}
	delete(f.ownerBookmarks(owner), id)
	f.mu.Unlock()

	f.publish(owner, remote.KindDelete, remote.EntityBookmarks, remote.DeletePayload{ID: id})
	return nil
}

func (f *Fake) RestoreBookmark(ctx context.Context, owner string, b domain.Bookmark) (domain.Bookmark, error) {
	if err := f.enter(ctx, OpRestoreBookmark, b.ID); err != nil {
		return domain.Bookmark{}, err
	}
	b = *b.Clone()
	f.mu.Lock()
	f.ownerBookmarks(owner)[b.ID] = b
	f.mu.Unlock()

	f.publish(owner, remote.KindInsert, remote.EntityBookmarks, b)
	return b, nil
}

func (f *Fake) ReorderBookmarks(ctx context.Context, owner string, positions []domain.Position) error {
	if err := f.enter(ctx, OpReorderBookmarks, ""); err != nil {
		return err
	}
	f.mu.Lock()
	items := f.ownerBookmarks(owner)
	for _, p := range positions {
		if _, ok := items[p.ID]; !ok {
			f.mu.Unlock()
			return &domain.NotFoundError{Entity: "bookmark", ID: p.ID}
		}
	}
	updated := make([]domain.Bookmark, 0, len(positions))
	for _, p := range positions {
		b := items[p.ID]
		b.OrderIndex = domain.Int64(p.Index)
		items[p.ID] = b
		updated = append(updated, b)
	}
	f.mu.Unlock()

	for _, b := range updated {
		f.publish(owner, remote.KindUpdate, remote.EntityBookmarks, b)
	}
	return nil
}

func (f *Fake) ListBookmarks(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	if err := f.enter(ctx, OpListBookmarks, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Bookmark, 0, len(f.bookmarks[owner]))
	for _, b := range f.bookmarks[owner] {
		out = append(out, *b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return domain.LessBookmark(&out[i], &out[j]) })
	return out, nil
}

// ─────────────────────────────────────────────────────────────────
// Groups
// ─────────────────────────────────────────────────────────────────

func (f *Fake) InsertGroup(ctx context.Context, owner string, g domain.Group) (domain.Group, error) {
	if err := f.enter(ctx, OpInsertGroup, g.Name); err != nil {
		return domain.Group{}, err
	}
	f.mu.Lock()
	if existing, ok := f.groupByName(owner, g.Name, ""); ok {
		f.mu.Unlock()
		return domain.Group{}, &domain.DuplicateGroupError{ExistingID: existing.ID, Name: existing.Name}
	}
	g = *g.Clone()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	f.ownerGroups(owner)[g.ID] = g
	f.mu.Unlock()

	f.publish(owner, remote.KindInsert, remote.EntityGroups, g)
	return g, nil
}

func (f *Fake) UpdateGroup(ctx context.Context, owner, id string, patch domain.GroupPatch) (domain.Group, error) {
	if err := f.enter(ctx, OpUpdateGroup, id); err != nil {
		return domain.Group{}, err
	}
	f.mu.Lock()
	g, ok := f.ownerGroups(owner)[id]
	if !ok {
		f.mu.Unlock()
		return domain.Group{}, &domain.NotFoundError{Entity: "group", ID: id}
	}
	if patch.Name != nil {
		if existing, dup := f.groupByName(owner, *patch.Name, id); dup {
			f.mu.Unlock()
			return domain.Group{}, &domain.DuplicateGroupError{ExistingID: existing.ID, Name: existing.Name}
		}
	}
	patch.Apply(&g)
	f.ownerGroups(owner)[id] = g
	f.mu.Unlock()

	f.publish(owner, remote.KindUpdate, remote.EntityGroups, g)
	return g, nil
}

func (f *Fake) DeleteGroup(ctx context.Context, owner, id string) error {
	if err := f.enter(ctx, OpDeleteGroup, id); err != nil {
		return err
	}
	f.mu.Lock()
	if _, ok := f.ownerGroups(owner)[id]; !ok {
		f.mu.Unlock()
		return &domain.NotFoundError{Entity: "group", ID: id}
	}
	delete(f.ownerGroups(owner), id)
	f.mu.Unlock()

	f.publish(owner, remote.KindDelete, remote.EntityGroups, remote.DeletePayload{ID: id})
	return nil
}

func (f *Fake) RestoreGroup(ctx context.Context, owner string, g domain.Group) (domain.Group, error) {
	if err := f.enter(ctx, OpRestoreGroup, g.ID); err != nil {
		return domain.Group{}, err
	}
	g = *g.Clone()
	f.mu.Lock()
	f.ownerGroups(owner)[g.ID] = g
	f.mu.Unlock()

	f.publish(owner, remote.KindInsert, remote.EntityGroups, g)
	return g, nil
}

func (f *Fake) ReorderGroups(ctx context.Context, owner string, positions []domain.Position) error {
	if err := f.enter(ctx, OpReorderGroups, ""); err != nil {
		return err
	}
	f.mu.Lock()
	items := f.ownerGroups(owner)
	for _, p := range positions {
		if _, ok := items[p.ID]; !ok {
			f.mu.Unlock()
			return &domain.NotFoundError{Entity: "group", ID: p.ID}
		}
	}
	updated := make([]domain.Group, 0, len(positions))
	for _, p := range positions {
		g := items[p.ID]
		g.OrderIndex = domain.Int64(p.Index)
		items[p.ID] = g
		updated = append(updated, g)
	}
	f.mu.Unlock()

	for _, g := range updated {
		f.publish(owner, remote.KindUpdate, remote.EntityGroups, g)
	}
	return nil
}

func (f *Fake) ListGroups(ctx context.Context, owner string) ([]domain.Group, error) {
	if err := f.enter(ctx, OpListGroups, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Group, 0, len(f.groups[owner]))
	for _, g := range f.groups[owner] {
		out = append(out, *g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return domain.LessGroup(&out[i], &out[j]) })
	return out, nil
}

// ─────────────────────────────────────────────────────────────────
// Subscriber
// ─────────────────────────────────────────────────────────────────

func (f *Fake) Subscribe(ctx context.Context, owner string, entity remote.Entity) (<-chan remote.Event, error) {
	return f.broker.Subscribe(ctx, remote.Channel(owner, entity)), nil
}

// Subscribers returns the number of live subscriptions for owner's entity.
func (f *Fake) Subscribers(owner string, entity remote.Entity) int {
	return f.broker.Subscribers(remote.Channel(owner, entity))
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.enter(ctx, OpPing, "")
}

func (f *Fake) Close() error {
	f.broker.Close()
	return nil
}

// ─────────────────────────────────────────────────────────────────
// internals
// ─────────────────────────────────────────────────────────────────

func (f *Fake) enter(ctx context.Context, op, id string) error {
	f.mu.Lock()
	f.calls[op]++
	gate := f.gates[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.next[op]; len(queue) > 0 {
		f.next[op] = queue[1:]
		return queue[0]
	}
	if err, ok := f.byID[op][id]; ok && id != "" {
		return err
	}
	return f.always[op]
}

func (f *Fake) publish(owner string, kind remote.Kind, entity remote.Entity, v any) {
	f.mu.Lock()
	silent := f.silent
	f.mu.Unlock()
	if silent {
		return
	}
	ev, err := remote.NewEvent(kind, entity, v)
	if err != nil {
		return
	}
	f.broker.Publish(remote.Channel(owner, entity), ev)
}

func (f *Fake) ownerBookmarks(owner string) map[string]domain.Bookmark {
	m, ok := f.bookmarks[owner]
	if !ok {
		m = make(map[string]domain.Bookmark)
		f.bookmarks[owner] = m
	}
	return m
}

func (f *Fake) ownerGroups(owner string) map[string]domain.Group {
	m, ok := f.groups[owner]
	if !ok {
		m = make(map[string]domain.Group)
		f.groups[owner] = m
	}
	return m
}

func (f *Fake) groupByName(owner, name, excludeID string) (domain.Group, bool) {
	key := domain.NormalizeGroupName(name)
	for _, g := range f.groups[owner] {
		if g.ID != excludeID && domain.NormalizeGroupName(g.Name) == key {
			return g, true
		}
	}
	return domain.Group{}, false
}
