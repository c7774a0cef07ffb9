package price

import (
	"context"
	"time"

	"crypto-price-alerts/internal/types"

	log "github.com/sirupsen/logrus"
)

// Cache is the best-effort snapshot store. It never reports errors: an
// unavailable backend behaves like an empty cache.
type Cache interface {
	Put(ctx context.Context, snapshot types.PriceSnapshot, ttl time.Duration)
	Get(ctx context.Context) (types.PriceSnapshot, bool)
}

// Service is the single path to prices for both the monitor and on-demand
// readers.
type Service struct {
	source Source
	cache  Cache
	ttl    time.Duration
}

func NewService(source Source, cache Cache, ttl time.Duration) *Service {
	return &Service{source: source, cache: cache, ttl: ttl}
}

// Latest returns the cached snapshot when it is still fresh, otherwise it
// fetches, caches and returns a new one.
func (s *Service) Latest(ctx context.Context) (types.PriceSnapshot, error) {
	if snapshot, ok := s.Cached(ctx); ok {
		return snapshot, nil
	}
	return s.Refresh(ctx)
}

// Cached never touches the provider
func (s *Service) Cached(ctx context.Context) (types.PriceSnapshot, bool) {
	if s.cache == nil {
		return types.PriceSnapshot{}, false
	}
	return s.cache.Get(ctx)
}

// Refresh always goes to the provider and republishes the result.
func (s *Service) Refresh(ctx context.Context) (types.PriceSnapshot, error) {
	snapshot, err := s.source.Fetch(ctx)
	if err != nil {
		return types.PriceSnapshot{}, err
	}

	if s.cache != nil {
		s.cache.Put(ctx, snapshot, s.ttl)
	}

	log.Debugf("✅ Cryptocurrency prices updated: %d quotes", snapshot.Len())
	return snapshot, nil
}
