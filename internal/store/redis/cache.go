package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/metadata"
)

var _ metadata.Cache = (*Store)(nil)

// PutMetadata caches the extraction result of a URL
func (s *Store) PutMetadata(ctx context.Context, rawURL string, m metadata.Metadata, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := s.client.Set(ctx, MetadataKey(domain.NormalizeURL(rawURL)), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache metadata: %w", err)
	}
	return nil
}

// GetMetadata retrieves cached metadata. A miss is not an error.
func (s *Store) GetMetadata(ctx context.Context, rawURL string) (metadata.Metadata, bool, error) {
	m, err := load[metadata.Metadata](ctx, s.client, MetadataKey(domain.NormalizeURL(rawURL)))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return metadata.Metadata{}, false, nil // Cache miss
		}
		return metadata.Metadata{}, false, fmt.Errorf("failed to get cached metadata: %w", err)
	}
	return m, true, nil
}
