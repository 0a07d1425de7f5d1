// Package sqlite implements the remote store on a single SQLite file.
// Change events are fanned out in process through a remote.Broker, so
// every subscriber of the same Store sees every write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	owner             TEXT NOT NULL,
	id                TEXT NOT NULL,
	client_ref        TEXT NOT NULL DEFAULT '',
	url               TEXT NOT NULL,
	normalized_url    TEXT NOT NULL,
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	favicon_url       TEXT NOT NULL DEFAULT '',
	og_image_url      TEXT NOT NULL DEFAULT '',
	preview_image_url TEXT NOT NULL DEFAULT '',
	group_id          TEXT,
	order_index       INTEGER,
	status            TEXT NOT NULL,
	error_reason      TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	PRIMARY KEY (owner, id)
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_owner_url ON bookmarks(owner, normalized_url);

CREATE TABLE IF NOT EXISTS bookmark_groups (
	owner       TEXT NOT NULL,
	id          TEXT NOT NULL,
	name        TEXT NOT NULL,
	name_key    TEXT NOT NULL,
	icon        TEXT NOT NULL,
	color       TEXT,
	order_index INTEGER,
	PRIMARY KEY (owner, id),
	UNIQUE (owner, name_key)
);

CREATE TABLE IF NOT EXISTS metadata_cache (
	normalized_url TEXT PRIMARY KEY,
	data           TEXT NOT NULL,
	expires_at     INTEGER NOT NULL
);
`

// Store is a remote.Backend on SQLite.
type Store struct {
	db     *sql.DB
	broker *remote.Broker
	log    logger.Logger
	now    func() time.Time
}

var _ remote.Backend = (*Store)(nil)

// Open opens (or creates) the database at dsn and applies the schema. A
// bare path gets a busy timeout so concurrent writers wait instead of
// failing.
func Open(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	if !strings.Contains(dsn, "?") && dsn != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection serializes writes in
	// process and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	s := &Store{
		db:     db,
		broker: remote.NewBroker(0),
		log:    log,
		now:    time.Now,
	}
	if n, err := s.PruneMetadata(ctx); err != nil {
		log.Warn("Failed to prune metadata cache", logger.Error(err))
	} else if n > 0 {
		log.Debug("Pruned expired metadata", logger.Int64("entries", n))
	}

	log.Info("SQLite store ready", logger.String("dsn", dsn))
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite: %w: %w", remote.ErrUnavailable, err)
	}
	return nil
}

// Close ends every subscription and closes the database.
func (s *Store) Close() error {
	s.broker.Close()
	return s.db.Close()
}

// Subscribe streams the owner's change events for entity.
func (s *Store) Subscribe(ctx context.Context, owner string, entity remote.Entity) (<-chan remote.Event, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	return s.broker.Subscribe(ctx, remote.Channel(owner, entity)), nil
}

func (s *Store) publish(owner string, kind remote.Kind, entity remote.Entity, v any) {
	ev, err := remote.NewEvent(kind, entity, v)
	if err != nil {
		s.log.Warn("Failed to build change event", logger.String("entity", string(entity)), logger.Error(err))
		return
	}
	s.broker.Publish(remote.Channel(owner, entity), ev)
}

// ─────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────

func checkOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return &domain.ValidationError{Field: "owner", Reason: "owner is required"}
	}
	return nil
}

// failure maps a database error to the domain taxonomy.
func failure(action, entity, id string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &domain.NotFoundError{Entity: entity, ID: id}
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("failed to %s: %w: %w", action, remote.ErrUnavailable, err)
	}
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return domain.String(v.String)
}

func fromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return domain.Int64(v.Int64)
}

func sortBookmarks(items []domain.Bookmark) {
	sort.Slice(items, func(i, j int) bool { return domain.LessBookmark(&items[i], &items[j]) })
}

func sortGroups(items []domain.Group) {
	sort.Slice(items, func(i, j int) bool { return domain.LessGroup(&items[i], &items[j]) })
}
