// Package redis implements the remote store on Redis: one JSON value per
// record, a per-owner id set per entity, and PUBLISH on the owner's
// channel after every write.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

const (
	// DefaultCacheTTL is the default TTL for cached page metadata (24 hours)
	DefaultCacheTTL = 24 * time.Hour

	// maxTxRetries bounds optimistic WATCH transactions under contention.
	maxTxRetries = 8
)

// Store handles Redis operations for bookmarks, groups and change events
type Store struct {
	client *redis.Client
	log    logger.Logger
	now    func() time.Time
}

var _ remote.Backend = (*Store)(nil)

// NewStore creates a new Redis store
func NewStore(client *redis.Client, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w: %w", remote.ErrUnavailable, err)
	}
	return nil
}

// Close releases the client and ends every subscription.
func (s *Store) Close() error {
	return s.client.Close()
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

// failure maps a Redis error to the domain taxonomy. Domain errors and
// context errors pass through; everything else is a transport failure.
func failure(action, entity, id string, err error) error {
	switch {
	case errors.Is(err, redis.Nil):
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

// watch runs fn as an optimistic transaction over keys, retrying while
// another client changes a watched key.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// load reads one JSON record. A missing key returns redis.Nil.
func load[T any](ctx context.Context, c getter, key string) (T, error) {
	var v T
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return v, nil
}

// loadAll reads every record listed in the id set at setKey. Ids whose
// value is gone or unreadable are skipped.
func loadAll[T any](ctx context.Context, s *Store, setKey string, keyOf func(id string) string) ([]T, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []T{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyOf(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(values))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			s.log.Debug("Skipping stale id in set", logger.String("set", setKey), logger.String("id", ids[i]))
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			s.log.Warn("Skipping unreadable record", logger.String("key", keys[i]), logger.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// reorder writes new order indices onto every listed record in one
// transaction. Any unknown id aborts the whole batch.
func reorder[T any](ctx context.Context, s *Store, entity string, keyOf func(id string) string, positions []domain.Position, set func(*T, int64)) ([]T, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	keys := make([]string, len(positions))
	for i, p := range positions {
		keys[i] = keyOf(p.ID)
	}

	var updated []T
	err := s.watch(ctx, func(tx *redis.Tx) error {
		values, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		updated = make([]T, 0, len(positions))
		encoded := make([][]byte, 0, len(positions))
		for i, raw := range values {
			str, ok := raw.(string)
			if !ok {
				return &domain.NotFoundError{Entity: entity, ID: positions[i].ID}
			}
			var v T
			if err := json.Unmarshal([]byte(str), &v); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
			}
			set(&v, positions[i].Index)
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", entity, err)
			}
			updated = append(updated, v)
			encoded = append(encoded, data)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, key := range keys {
				pipe.Set(ctx, key, encoded[i], 0)
			}
			return nil
		})
		return err
	}, keys...)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func sortBookmarks(items []domain.Bookmark) {
	sort.Slice(items, func(i, j int) bool { return domain.LessBookmark(&items[i], &items[j]) })
}

func sortGroups(items []domain.Group) {
	sort.Slice(items, func(i, j int) bool { return domain.LessGroup(&items[i], &items[j]) })
}
