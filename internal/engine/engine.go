// Package engine is the only path through which user intent mutates the
// shared collection. Every mutation is applied locally first, then
// persisted in the background; the returned Op reports the remote outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/metadata"
	"github.com/MrSnakeDoc/shelf/internal/remote"
	"github.com/MrSnakeDoc/shelf/internal/undo"
)

// Options wires the engine to its collaborators.
type Options struct {
	Owner      string
	Store      remote.Store
	Extractor  metadata.Extractor // nil marks new bookmarks ready immediately
	Collection *index.Collection
	Ledger     *undo.Ledger
	Bus        *events.Bus
	Logger     logger.Logger

	// RemoteTimeout bounds every single remote call.
	RemoteTimeout time.Duration
	// Concurrency bounds parallel per-item calls of bulk operations.
	Concurrency int
	Now         func() time.Time
}

// pendingInsert tracks a bookmark whose insert has not been confirmed yet,
// keyed by its temporary id.
type pendingInsert struct {
	op       *Op
	serverID string
}

// Engine applies optimistic mutations to one owner's collection and persists them.
type Engine struct {
	owner     string
	store     remote.Store
	extractor metadata.Extractor
	coll      *index.Collection
	ledger    *undo.Ledger
	sel       *index.Selection
	bus       *events.Bus
	log       logger.Logger
	timeout   time.Duration
	limit     int
	now       func() time.Time

	mu      sync.Mutex
	inserts map[string]*pendingInsert
	deletes map[string]*Op // undo entry id -> remote delete still running

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an engine. Missing collaborators get working defaults.
func New(opts Options) *Engine {
	if opts.Collection == nil {
		opts.Collection = index.NewCollection()
	}
	if opts.Ledger == nil {
		opts.Ledger = undo.New(0, 0)
	}
	if opts.Bus == nil {
		opts.Bus = events.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		owner:     opts.Owner,
		store:     opts.Store,
		extractor: opts.Extractor,
		coll:      opts.Collection,
		ledger:    opts.Ledger,
		sel:       index.NewSelection(),
		bus:       opts.Bus,
		log:       opts.Logger,
		timeout:   opts.RemoteTimeout,
		limit:     opts.Concurrency,
		now:       opts.Now,
		inserts:   make(map[string]*pendingInsert),
		deletes:   make(map[string]*Op),
		ctx:       ctx,
		cancel:    cancel,
	}

	bus := e.bus
	e.coll.OnChange(func(version uint64, source string) {
		e.pruneSelection()
		events.Publish(bus, events.CollectionChanged, events.Change{Version: version, Source: source})
	})
	return e
}

// Owner is the user whose collection the engine manages.
func (e *Engine) Owner() string { return e.owner }

// Collection exposes the shared state, e.g. to the realtime reconciler.
func (e *Engine) Collection() *index.Collection { return e.coll }

// Ledger exposes the undo history, e.g. to the sweeper.
func (e *Engine) Ledger() *undo.Ledger { return e.ledger }

// Bus is the event bus notifications are published on.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Bookmarks returns a copy of every bookmark in display order.
func (e *Engine) Bookmarks() []*domain.Bookmark { return e.coll.Bookmarks() }

// Groups returns a copy of every group in display order.
func (e *Engine) Groups() []*domain.Group { return e.coll.Groups() }

// ─────────────────────────────────────────────────────────────────
// Snapshot
// ─────────────────────────────────────────────────────────────────

func (e *Engine) fetch(ctx context.Context) ([]*domain.Bookmark, []*domain.Group, error) {
	var (
		bookmarks []domain.Bookmark
		groups    []domain.Group
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bookmarks, err = e.store.ListBookmarks(gctx, e.owner)
		if err != nil {
			return fmt.Errorf("list bookmarks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		groups, err = e.store.ListGroups(gctx, e.owner)
		if err != nil {
			return fmt.Errorf("list groups: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	now := e.now()
	outB := make([]*domain.Bookmark, 0, len(bookmarks))
	for i := range bookmarks {
		b := bookmarks[i].Clone()
		b.Fill(now)
		outB = append(outB, b)
	}
	outG := make([]*domain.Group, 0, len(groups))
	for i := range groups {
		gr := groups[i].Clone()
		gr.Fill()
		outG = append(outG, gr)
	}
	return outB, outG, nil
}

// Load installs the initial snapshot.
func (e *Engine) Load(ctx context.Context) error {
	bookmarks, groups, err := e.fetch(ctx)
	if err != nil {
		return err
	}
	e.coll.Replace(bookmarks, groups, events.SourceSnapshot)
	e.log.Info("Collection loaded",
		logger.Int("bookmarks", len(bookmarks)),
		logger.Int("groups", len(groups)),
	)
	return nil
}

// Reload replaces the collection with a fresh snapshot while keeping
// bookmarks whose insert has not been confirmed and hiding ids deleted
// locally whose delete is still in flight.
func (e *Engine) Reload(ctx context.Context) error {
	bookmarks, groups, err := e.fetch(ctx)
	if err != nil {
		return err
	}

	unsynced := e.unsyncedIDs()
	_ = e.coll.Update(events.SourceSnapshot, func(s *index.State) error {
		fresh := make([]*domain.Bookmark, 0, len(bookmarks)+len(unsynced))
		seen := make(map[string]bool, len(bookmarks))
		for _, b := range bookmarks {
			if s.Buried(b.ID) {
				continue
			}
			seen[b.ID] = true
			if b.ClientRef != "" {
				seen[b.ClientRef] = true
			}
			fresh = append(fresh, b)
		}
		for _, b := range s.Bookmarks {
			if unsynced[b.ID] && !seen[b.ID] {
				fresh = append(fresh, b)
			}
		}
		s.Bookmarks = fresh
		s.Sort()

		keptGroups := groups[:0]
		for _, g := range groups {
			if !s.Buried(g.ID) {
				keptGroups = append(keptGroups, g)
			}
		}
		s.Groups = keptGroups
		domain.SortGroups(s.Groups)
		return nil
	})

	e.log.Debug("Collection reloaded",
		logger.Int("bookmarks", len(bookmarks)),
		logger.Int("groups", len(groups)),
		logger.Int("unsynced", len(unsynced)),
	)
	return nil
}

// Close waits for in-flight remote calls, then cancels what is left.
func (e *Engine) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return ctx.Err()
	}
}

// ─────────────────────────────────────────────────────────────────
// internals
// ─────────────────────────────────────────────────────────────────

// run executes fn in the background under the engine context.
func (e *Engine) run(name string, fn func(ctx context.Context) error) *Op {
	return e.start(newOp(name), fn)
}

func (e *Engine) start(op *Op, fn func(ctx context.Context) error) *Op {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := fn(e.ctx)
		if err != nil {
			e.log.Warn("Remote operation failed", logger.String("op", op.name), logger.Error(err))
		}
		op.finish(err)
	}()
	return op
}

// call bounds one remote call with the configured timeout.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return fn(ctx)
}

// resolveID maps a temporary id to its server id, waiting for the insert
// to finish when it is still in flight. ok is false when the record was
// never persisted.
func (e *Engine) resolveID(ctx context.Context, id string) (string, bool, error) {
	e.mu.Lock()
	p, tracked := e.inserts[id]
	e.mu.Unlock()
	if !tracked {
		return id, true, nil
	}

	if err := p.op.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return p.serverID, p.serverID != "", nil
}

// unsyncedIDs returns the temporary ids whose insert is running or failed.
func (e *Engine) unsyncedIDs() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]bool, len(e.inserts))
	for temp, p := range e.inserts {
		if p.serverID == "" {
			out[temp] = true
		}
	}
	return out
}

// forEach runs fn for every id with bounded concurrency and collects
// per-item failures.
func (e *Engine) forEach(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) map[string]error {
	var (
		mu       sync.Mutex
		failures = make(map[string]error)
	)

	g := new(errgroup.Group)
	g.SetLimit(e.limit)
	for _, id := range ids {
		g.Go(func() error {
			if err := fn(ctx, id); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func (e *Engine) notify(op string, err error, ids ...string) {
	events.Notify(e.bus, op, err, ids...)
}

// isGone reports whether a remote error says the record no longer exists.
func isGone(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
