package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/remote"
	"github.com/MrSnakeDoc/shelf/internal/utils"
)

const entityBookmark = "bookmark"

const bookmarkColumns = `id, client_ref, url, normalized_url, title, description,
	favicon_url, og_image_url, preview_image_url, group_id, order_index,
	status, error_reason, created_at`

func scanBookmark(row scanner) (domain.Bookmark, error) {
	var (
		b       domain.Bookmark
		groupID sql.NullString
		index   sql.NullInt64
		status  string
		created string
	)
	err := row.Scan(&b.ID, &b.ClientRef, &b.URL, &b.NormalizedURL, &b.Title, &b.Description,
		&b.FaviconURL, &b.OGImageURL, &b.PreviewImageURL, &groupID, &index,
		&status, &b.ErrorReason, &created)
	if err != nil {
		return domain.Bookmark{}, err
	}
	b.GroupID = fromNullString(groupID)
	b.OrderIndex = fromNullInt64(index)
	b.Status = domain.Status(status)
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return domain.Bookmark{}, fmt.Errorf("parse created_at of %s: %w", b.ID, err)
	}
	return b, nil
}

func bookmarkArgs(owner string, b domain.Bookmark) []any {
	return []any{
		owner, b.ID, b.ClientRef, b.URL, b.NormalizedURL, b.Title, b.Description,
		b.FaviconURL, b.OGImageURL, b.PreviewImageURL, nullString(b.GroupID), nullInt64(b.OrderIndex),
		string(b.Status), b.ErrorReason, b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

const upsertBookmark = `INSERT INTO bookmarks (owner, ` + bookmarkColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner, id) DO UPDATE SET
		client_ref = excluded.client_ref,
		url = excluded.url,
		normalized_url = excluded.normalized_url,
		title = excluded.title,
		description = excluded.description,
		favicon_url = excluded.favicon_url,
		og_image_url = excluded.og_image_url,
		preview_image_url = excluded.preview_image_url,
		group_id = excluded.group_id,
		order_index = excluded.order_index,
		status = excluded.status,
		error_reason = excluded.error_reason,
		created_at = excluded.created_at`

func getBookmark(ctx context.Context, tx *sql.Tx, owner, id string) (domain.Bookmark, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE owner = ? AND id = ?`, owner, id)
	return scanBookmark(row)
}

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

	res, err := s.db.ExecContext(ctx, `INSERT INTO bookmarks (owner, `+bookmarkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, id) DO NOTHING`, bookmarkArgs(owner, b)...)
	if err != nil {
		return domain.Bookmark{}, failure("save bookmark", entityBookmark, b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Bookmark{}, &domain.ValidationError{Field: "id", Reason: "already exists"}
	}

	s.publish(owner, remote.KindInsert, remote.EntityBookmarks, b)
	return b, nil
}

// UpdateBookmark applies patch to the stored bookmark.
func (s *Store) UpdateBookmark(ctx context.Context, owner, id string, patch domain.BookmarkPatch) (domain.Bookmark, error) {
	if err := checkOwner(owner); err != nil {
		return domain.Bookmark{}, err
	}
	var out domain.Bookmark
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		b, err := getBookmark(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		patch.Apply(&b)
		if _, err := tx.ExecContext(ctx, upsertBookmark, bookmarkArgs(owner, b)...); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, failure("update bookmark", entityBookmark, id, err)
	}

	s.publish(owner, remote.KindUpdate, remote.EntityBookmarks, out)
	return out, nil
}

func (s *Store) DeleteBookmark(ctx context.Context, owner, id string) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return failure("delete bookmark", entityBookmark, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: entityBookmark, ID: id}
	}

	s.publish(owner, remote.KindDelete, remote.EntityBookmarks, remote.DeletePayload{ID: id})
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
	b.Fill(s.now())

	if _, err := s.db.ExecContext(ctx, upsertBookmark, bookmarkArgs(owner, b)...); err != nil {
		return domain.Bookmark{}, failure("restore bookmark", entityBookmark, b.ID, err)
	}

	s.publish(owner, remote.KindInsert, remote.EntityBookmarks, b)
	return b, nil
}

// ReorderBookmarks writes every position in one transaction. Any unknown
// id rolls the whole batch back.
func (s *Store) ReorderBookmarks(ctx context.Context, owner string, positions []domain.Position) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	var updated []domain.Bookmark
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range positions {
			res, err := tx.ExecContext(ctx, `UPDATE bookmarks SET order_index = ? WHERE owner = ? AND id = ?`, p.Index, owner, p.ID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return &domain.NotFoundError{Entity: entityBookmark, ID: p.ID}
			}
			b, err := getBookmark(ctx, tx, owner, p.ID)
			if err != nil {
				return err
			}
			updated = append(updated, b)
		}
		return nil
	})
	if err != nil {
		return failure("reorder bookmarks", entityBookmark, "", err)
	}

	for _, b := range updated {
		s.publish(owner, remote.KindUpdate, remote.EntityBookmarks, b)
	}
	return nil
}

// ListBookmarks returns every bookmark of owner in display order.
func (s *Store) ListBookmarks(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE owner = ?`, owner)
	if err != nil {
		return nil, failure("list bookmarks", entityBookmark, "", err)
	}
	defer utils.Close(rows)

	out := []domain.Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, failure("list bookmarks", entityBookmark, "", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list bookmarks", entityBookmark, "", err)
	}
	sortBookmarks(out)
	return out, nil
}
