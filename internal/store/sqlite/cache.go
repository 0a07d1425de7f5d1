package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/metadata"
)

// DefaultCacheTTL is the default TTL for cached page metadata.
const DefaultCacheTTL = 24 * time.Hour

var _ metadata.Cache = (*Store)(nil)

// PutMetadata caches the extraction result of a URL.
func (s *Store) PutMetadata(ctx context.Context, rawURL string, m metadata.Metadata, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metadata_cache (normalized_url, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (normalized_url) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		domain.NormalizeURL(rawURL), string(data), s.now().Add(ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache metadata: %w", err)
	}
	return nil
}

// GetMetadata retrieves cached metadata. A miss or an expired entry is
// not an error.
func (s *Store) GetMetadata(ctx context.Context, rawURL string) (metadata.Metadata, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM metadata_cache WHERE normalized_url = ? AND expires_at > ?`,
		domain.NormalizeURL(rawURL), s.now().UnixMilli(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.Metadata{}, false, nil
	}
	if err != nil {
		return metadata.Metadata{}, false, fmt.Errorf("failed to get cached metadata: %w", err)
	}

	var m metadata.Metadata
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return metadata.Metadata{}, false, fmt.Errorf("failed to unmarshal cached metadata: %w", err)
	}
	return m, true, nil
}

// PruneMetadata deletes expired cache entries and returns how many went.
func (s *Store) PruneMetadata(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM metadata_cache WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune metadata cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
