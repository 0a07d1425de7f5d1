// Package realtime merges remote-confirmed change events into the shared
// collection. Every merge is idempotent and tolerates reordering, so the
// same event may be applied any number of times in any position.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/events"
	"github.com/MrSnakeDoc/shelf/internal/index"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/ordering"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

const (
	defaultOrphanTTL   = 30 * time.Second
	defaultOrphanLimit = 256
)

// Options configures a Reconciler.
type Options struct {
	Collection *index.Collection
	Bus        *events.Bus
	Logger     logger.Logger
	Now        func() time.Time

	// OrphanTTL bounds how long an UPDATE that arrived before its INSERT
	// is kept waiting for it.
	OrphanTTL time.Duration
	// OrphanLimit bounds the number of such waiting updates.
	OrphanLimit int

	// OnStreamLost runs when a subscription ends while Run is active.
	OnStreamLost func(entity remote.Entity)
}

// orphan is an UPDATE for a bookmark not present yet.
type orphan struct {
	record  domain.Bookmark
	present map[string]bool
	at      time.Time
}

// Reconciler merges remote change events into the local collection.
type Reconciler struct {
	coll   *index.Collection
	bus    *events.Bus
	log    logger.Logger
	now    func() time.Time
	ttl    time.Duration
	limit  int
	onLost func(remote.Entity)
	sch    *schemas

	mu      sync.Mutex
	orphans map[string]*orphan
}

// New creates a reconciler bound to the collection in opts.
func New(opts Options) (*Reconciler, error) {
	sch, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	if opts.Collection == nil {
		return nil, errors.New("realtime: collection is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OrphanTTL <= 0 {
		opts.OrphanTTL = defaultOrphanTTL
	}
	if opts.OrphanLimit <= 0 {
		opts.OrphanLimit = defaultOrphanLimit
	}

	return &Reconciler{
		coll:    opts.Collection,
		bus:     opts.Bus,
		log:     opts.Logger,
		now:     opts.Now,
		ttl:     opts.OrphanTTL,
		limit:   opts.OrphanLimit,
		onLost:  opts.OnStreamLost,
		sch:     sch,
		orphans: make(map[string]*orphan),
	}, nil
}

// Apply merges one event. A payload that cannot be merged is reported with
// an error wrapping ErrInvalidPayload; the collection is left untouched.
func (r *Reconciler) Apply(ev remote.Event) error {
	r.expireOrphans()

	switch ev.Entity {
	case remote.EntityBookmarks:
		switch ev.Kind {
		case remote.KindInsert:
			return r.insertBookmark(ev.Payload)
		case remote.KindUpdate:
			return r.updateBookmark(ev.Payload)
		case remote.KindDelete:
			return r.deleteBookmark(ev.Payload)
		}
	case remote.EntityGroups:
		switch ev.Kind {
		case remote.KindInsert:
			return r.upsertGroup(ev.Payload, true)
		case remote.KindUpdate:
			return r.upsertGroup(ev.Payload, false)
		case remote.KindDelete:
			return r.deleteGroup(ev.Payload)
		}
	}
	return fmt.Errorf("%w: unknown event %s/%s", ErrInvalidPayload, ev.Entity, ev.Kind)
}

// ApplyBroadcast merges a bookmark pushed by a sibling surface, e.g. the
// browser extension right after it saved a page.
func (r *Reconciler) ApplyBroadcast(raw json.RawMessage) error {
	r.expireOrphans()
	return r.insertBookmark(raw)
}

// Run consumes the bookmark and group streams of owner until ctx ends.
// A stream that closes early leaves the collection at its last known state.
func (r *Reconciler) Run(ctx context.Context, sub remote.Subscriber, owner string) error {
	bookmarks, err := sub.Subscribe(ctx, owner, remote.EntityBookmarks)
	if err != nil {
		return fmt.Errorf("subscribe bookmarks: %w", err)
	}
	groups, err := sub.Subscribe(ctx, owner, remote.EntityGroups)
	if err != nil {
		return fmt.Errorf("subscribe groups: %w", err)
	}
	r.log.Info("Realtime subscription started", logger.String("owner", owner))

	for bookmarks != nil || groups != nil {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-bookmarks:
			if !ok {
				bookmarks = nil
				r.streamLost(ctx, remote.EntityBookmarks)
				continue
			}
			r.handle(ev)
		case ev, ok := <-groups:
			if !ok {
				groups = nil
				r.streamLost(ctx, remote.EntityGroups)
				continue
			}
			r.handle(ev)
		}
	}
	return nil
}

// Orphans returns the number of updates waiting for their insert.
func (r *Reconciler) Orphans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orphans)
}

func (r *Reconciler) handle(ev remote.Event) {
	if err := r.Apply(ev); err != nil {
		r.log.Warn("Realtime event rejected",
			logger.String("entity", string(ev.Entity)),
			logger.String("kind", string(ev.Kind)),
			logger.Error(err),
		)
	}
}

func (r *Reconciler) streamLost(ctx context.Context, entity remote.Entity) {
	if ctx.Err() != nil {
		return
	}
	r.log.Warn("Realtime stream ended, keeping last known state", logger.String("entity", string(entity)))
	events.Notify(r.bus, "realtime", fmt.Errorf("%s updates paused, reload to resync", entity))
	if r.onLost != nil {
		r.onLost(entity)
	}
}

// ─────────────────────────────────────────────────────────────────
// Bookmarks
// ─────────────────────────────────────────────────────────────────

func (r *Reconciler) decodeBookmark(insert bool, raw []byte) (domain.Bookmark, map[string]bool, error) {
	sch := r.sch.bookmark
	if insert {
		sch = r.sch.bookmarkInsert
	}
	clean, present, dropped, err := sanitize(sch, raw)
	if err != nil {
		return domain.Bookmark{}, nil, err
	}
	if len(dropped) > 0 {
		r.log.Debug("Dropped invalid bookmark fields", logger.Strings("fields", dropped))
	}

	var b domain.Bookmark
	if err := json.Unmarshal(clean, &b); err != nil {
		return domain.Bookmark{}, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if present["url"] && !domain.IsValidURL(b.URL) {
		if insert {
			return domain.Bookmark{}, nil, fmt.Errorf("%w: bookmark %s has an invalid url", ErrInvalidPayload, b.ID)
		}
		delete(present, "url")
	}
	return b, present, nil
}

func (r *Reconciler) insertBookmark(raw []byte) error {
	in, present, err := r.decodeBookmark(true, raw)
	if err != nil {
		return err
	}
	now := r.now()

	applied := false
	_ = r.coll.Update(events.SourceRemote, func(s *index.State) error {
		r.dropInvalid(s)

		if cur := locate(s, in); cur != nil {
			mergeBookmark(cur, &in, present, true)
			r.adoptOrphan(cur)
			s.Sort()
			applied = true
			return nil
		}
		if s.Buried(in.ID) || (in.ClientRef != "" && s.Buried(in.ClientRef)) {
			return nil
		}

		b := in.Clone()
		b.Fill(now)
		if b.OrderIndex == nil {
			b.OrderIndex = domain.Int64(ordering.Prepend(s.Indices()))
		}
		r.adoptOrphan(b)
		s.Upsert(b)
		applied = true
		return nil
	})

	if !applied {
		r.log.Debug("Ignored insert of a locally deleted bookmark", logger.String("id", in.ID))
	}
	return nil
}

func (r *Reconciler) updateBookmark(raw []byte) error {
	in, present, err := r.decodeBookmark(false, raw)
	if err != nil {
		return err
	}

	found, buried := false, false
	_ = r.coll.Update(events.SourceRemote, func(s *index.State) error {
		r.dropInvalid(s)

		cur := locate(s, in)
		if cur == nil {
			buried = s.Buried(in.ID) || (in.ClientRef != "" && s.Buried(in.ClientRef))
			return nil
		}
		found = true
		mergeBookmark(cur, &in, present, false)
		s.Sort()
		return nil
	})

	if !found && !buried {
		r.keepOrphan(in, present)
	}
	return nil
}

func (r *Reconciler) deleteBookmark(raw []byte) error {
	clean, _, _, err := sanitize(r.sch.deletion, raw)
	if err != nil {
		return err
	}
	var del remote.DeletePayload
	if err := json.Unmarshal(clean, &del); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	r.mu.Lock()
	delete(r.orphans, del.ID)
	r.mu.Unlock()

	now := r.now()
	_ = r.coll.Update(events.SourceRemote, func(s *index.State) error {
		r.dropInvalid(s)
		if cur, _ := s.FindByRef(del.ID); cur != nil {
			s.Remove(cur.ID)
			return nil
		}
		// Unknown here: the delete overtook its insert echo, or the insert
		// callback of a local add. Either must not bring the record back.
		s.Bury(now, del.ID)
		return nil
	})
	return nil
}

// locate finds the local record of an inbound one by server id, then by
// the client reference of an optimistic insert.
func locate(s *index.State, in domain.Bookmark) *domain.Bookmark {
	if cur, _ := s.FindByRef(in.ID); cur != nil {
		return cur
	}
	if in.ClientRef != "" {
		if cur, _ := s.FindByRef(in.ClientRef); cur != nil {
			return cur
		}
	}
	return nil
}

func (r *Reconciler) dropInvalid(s *index.State) {
	if dropped := s.DropInvalid(); len(dropped) > 0 {
		r.log.Warn("Dropped local bookmarks with invalid urls", logger.Strings("ids", dropped))
	}
}

// mergeBookmark copies the properties present on the wire onto cur; the
// rest of cur is left as it is locally. An insert echo never moves a
// record back to pending once it has progressed locally.
func mergeBookmark(cur, in *domain.Bookmark, present map[string]bool, insert bool) {
	if in.ID != "" {
		cur.ID = in.ID
	}
	if present["clientRef"] && cur.ClientRef == "" {
		cur.ClientRef = in.ClientRef
	}
	if present["url"] {
		cur.URL = in.URL
		cur.NormalizedURL = domain.NormalizeURL(in.URL)
	}
	if present["normalizedUrl"] && in.NormalizedURL != "" {
		cur.NormalizedURL = in.NormalizedURL
	}
	if present["title"] {
		cur.Title = in.Title
		if cur.Title == "" {
			cur.Title = cur.NormalizedURL
		}
	}
	if present["description"] {
		cur.Description = in.Description
	}
	if present["faviconUrl"] {
		cur.FaviconURL = in.FaviconURL
	}
	if present["ogImageUrl"] {
		cur.OGImageURL = in.OGImageURL
	}
	if present["previewImageUrl"] {
		cur.PreviewImageURL = in.PreviewImageURL
	}
	if present["groupId"] {
		cur.GroupID = nil
		if in.GroupID != nil && *in.GroupID != "" {
			cur.GroupID = domain.String(*in.GroupID)
		}
	}
	if present["orderIndex"] && in.OrderIndex != nil {
		cur.OrderIndex = domain.Int64(*in.OrderIndex)
	}
	if present["status"] {
		regress := insert && in.Status == domain.StatusPending && cur.Status != domain.StatusPending
		if !regress {
			cur.Status = in.Status
			cur.ErrorReason = in.ErrorReason
			if cur.Status == domain.StatusFailed && cur.ErrorReason == "" {
				cur.ErrorReason = "unknown error"
			}
			if cur.Status != domain.StatusFailed {
				cur.ErrorReason = ""
			}
		}
	}
	if present["createdAt"] && !in.CreatedAt.IsZero() {
		cur.CreatedAt = in.CreatedAt
	}
}

// ─────────────────────────────────────────────────────────────────
// Orphan updates
// ─────────────────────────────────────────────────────────────────

func (r *Reconciler) keepOrphan(in domain.Bookmark, present map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if o, ok := r.orphans[in.ID]; ok {
		mergeBookmark(&o.record, &in, present, false)
		for k := range present {
			o.present[k] = true
		}
		o.at = now
		return
	}

	if len(r.orphans) >= r.limit {
		oldest := ""
		for id, o := range r.orphans {
			if oldest == "" || o.at.Before(r.orphans[oldest].at) {
				oldest = id
			}
		}
		delete(r.orphans, oldest)
	}

	keys := make(map[string]bool, len(present))
	for k := range present {
		keys[k] = true
	}
	r.orphans[in.ID] = &orphan{record: *in.Clone(), present: keys, at: now}
	r.log.Debug("Buffered update for an unknown bookmark", logger.String("id", in.ID))
}

// adoptOrphan applies a buffered update to the record that just arrived.
func (r *Reconciler) adoptOrphan(b *domain.Bookmark) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orphans[b.ID]
	if !ok {
		return
	}
	delete(r.orphans, b.ID)
	mergeBookmark(b, &o.record, o.present, false)
}

func (r *Reconciler) expireOrphans() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	for id, o := range r.orphans {
		if o.at.Before(cutoff) {
			delete(r.orphans, id)
		}
	}
}

// ─────────────────────────────────────────────────────────────────
// Groups
// ─────────────────────────────────────────────────────────────────

func (r *Reconciler) upsertGroup(raw []byte, insert bool) error {
	sch := r.sch.group
	if insert {
		sch = r.sch.groupInsert
	}
	clean, present, _, err := sanitize(sch, raw)
	if err != nil {
		return err
	}
	var in domain.Group
	if err := json.Unmarshal(clean, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	_ = r.coll.Update(events.SourceRemote, func(s *index.State) error {
		cur, ok := s.Group(in.ID)
		if !ok {
			if !insert || s.Buried(in.ID) {
				return nil
			}
			g := in.Clone()
			g.Fill()
			if g.OrderIndex == nil {
				g.OrderIndex = domain.Int64(ordering.Append(s.GroupIndices()))
			}
			s.UpsertGroup(g)
			return nil
		}

		if present["name"] {
			cur.Name = in.Name
		}
		if present["icon"] {
			cur.Icon = in.Icon
		}
		if present["color"] {
			cur.Color = nil
			if in.Color != nil && *in.Color != "" {
				cur.Color = domain.String(*in.Color)
			}
		}
		if present["orderIndex"] && in.OrderIndex != nil {
			cur.OrderIndex = domain.Int64(*in.OrderIndex)
		}
		cur.Fill()
		domain.SortGroups(s.Groups)
		return nil
	})
	return nil
}

func (r *Reconciler) deleteGroup(raw []byte) error {
	clean, _, _, err := sanitize(r.sch.deletion, raw)
	if err != nil {
		return err
	}
	var del remote.DeletePayload
	if err := json.Unmarshal(clean, &del); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	_ = r.coll.Update(events.SourceRemote, func(s *index.State) error {
		if _, _, ok := s.RemoveGroup(del.ID); !ok {
			return nil
		}
		for _, b := range s.Members(del.ID) {
			b.GroupID = nil
		}
		return nil
	})
	return nil
}
