package metadata

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// Cache stores extraction results keyed by URL.
type Cache interface {
	GetMetadata(ctx context.Context, rawURL string) (Metadata, bool, error)
	PutMetadata(ctx context.Context, rawURL string, m Metadata, ttl time.Duration) error
}

// CachedExtractor answers from Cache when it can and stores every
// successful extraction of the wrapped Extractor. Cache errors are logged
// and never fail an extraction.
type CachedExtractor struct {
	next  Extractor
	cache Cache
	ttl   time.Duration
	log   logger.Logger
}

func NewCachedExtractor(next Extractor, cache Cache, ttl time.Duration, log logger.Logger) *CachedExtractor {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedExtractor{next: next, cache: cache, ttl: ttl, log: log}
}

func (c *CachedExtractor) Extract(ctx context.Context, rawURL string) (Metadata, error) {
	m, ok, err := c.cache.GetMetadata(ctx, rawURL)
	switch {
	case err != nil:
		c.log.Warn("Metadata cache lookup failed", logger.String("url", rawURL), logger.Error(err))
	case ok:
		return m, nil
	}

	m, err = c.next.Extract(ctx, rawURL)
	if err != nil {
		return Metadata{}, err
	}
	if err := c.cache.PutMetadata(ctx, rawURL, m, c.ttl); err != nil {
		c.log.Warn("Metadata cache write failed", logger.String("url", rawURL), logger.Error(err))
	}
	return m, nil
}
