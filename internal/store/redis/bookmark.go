package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/remote"
)

const entityBookmark = "bookmark"

// InsertBookmark stores a new bookmark. An empty ID is assigned here.
func (s *Store) InsertBookmark(ctx context.Context, owner string, b domain.Bookmark) (domain.Bookmark, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Bookmark{}, err
	}
	b = *b.Clone()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Fill(s.now())

	data, err := json.Marshal(b)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal bookmark: %w", err)
	}

	var set *redis.StatusCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetArgs(ctx, BookmarkKey(owner, b.ID), data, redis.SetArgs{Mode: "NX"})
		pipe.SAdd(ctx, BookmarksKey(owner), b.ID)
		return nil
	})
	if set != nil && errors.Is(set.Err(), redis.Nil) {
		return domain.Bookmark{}, &domain.ValidationError{Field: "id", Reason: "already exists"}
	}
	if err != nil {
		return domain.Bookmark{}, failure("save bookmark", entityBookmark, b.ID, err)
	}

	s.publish(ctx, owner, remote.KindInsert, remote.EntityBookmarks, b)
	return b, nil
}

// UpdateBookmark applies patch to the stored bookmark.
func (s *Store) UpdateBookmark(ctx context.Context, owner, id string, patch domain.BookmarkPatch) (domain.Bookmark, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Bookmark{}, err
	}
	key := BookmarkKey(owner, id)

	var out domain.Bookmark
	err := s.watch(ctx, func(tx *redis.Tx) error {
		b, err := load[domain.Bookmark](ctx, tx, key)
		if err != nil {
			return err
		}
		patch.Apply(&b)
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal bookmark: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		out = b
		return err
	}, key)
	if err != nil {
		return domain.Bookmark{}, failure("update bookmark", entityBookmark, id, err)
	}

	s.publish(ctx, owner, remote.KindUpdate, remote.EntityBookmarks, out)
	return out, nil
}

// DeleteBookmark removes a bookmark and its id from the owner's set.
func (s *Store) DeleteBookmark(ctx context.Context, owner, id string) error {
	if err := checkOwner(owner); err != nil {
		return err
	}

	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, BookmarkKey(owner, id))
		pipe.SRem(ctx, BookmarksKey(owner), id)
		return nil
	})
	if err != nil {
		return failure("delete bookmark", entityBookmark, id, err)
	}
	if del.Val() == 0 {
		return &domain.NotFoundError{Entity: entityBookmark, ID: id}
	}

	s.publish(ctx, owner, remote.KindDelete, remote.EntityBookmarks, remote.DeletePayload{ID: id})
	return nil
}

// RestoreBookmark writes b back under its original id.
func (s *Store) RestoreBookmark(ctx context.Context, owner string, b domain.Bookmark) (domain.Bookmark, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Bookmark{}, err
	}
	if b.ID == "" {
		return domain.Bookmark{}, &domain.ValidationError{Field: "id", Reason: "restore needs the original id"}
	}
	b = *b.Clone()

	data, err := json.Marshal(b)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal bookmark: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(owner, b.ID), data, 0)
		pipe.SAdd(ctx, BookmarksKey(owner), b.ID)
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, failure("restore bookmark", entityBookmark, b.ID, err)
	}

	s.publish(ctx, owner, remote.KindInsert, remote.EntityBookmarks, b)
	return b, nil
}

// ReorderBookmarks writes every position in one transaction.
func (s *Store) ReorderBookmarks(ctx context.Context, owner string, positions []domain.Position) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	keyOf := func(id string) string { return BookmarkKey(owner, id) }
	updated, err := reorder(ctx, s, entityBookmark, keyOf, positions, func(b *domain.Bookmark, index int64) {
		b.OrderIndex = domain.Int64(index)
	})
	if err != nil {
		return failure("reorder bookmarks", entityBookmark, "", err)
	}

	for _, b := range updated {
		s.publish(ctx, owner, remote.KindUpdate, remote.EntityBookmarks, b)
	}
	return nil
}

// ListBookmarks returns every bookmark of owner in display order.
func (s *Store) ListBookmarks(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	keyOf := func(id string) string { return BookmarkKey(owner, id) }
	items, err := loadAll[domain.Bookmark](ctx, s, BookmarksKey(owner), keyOf)
	if err != nil {
		return nil, failure("list bookmarks", entityBookmark, "", err)
	}
	sortBookmarks(items)
	return items, nil
}
