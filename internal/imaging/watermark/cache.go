package watermark

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/lumina/internal/infrastructure/metrics"
	"github.com/hszk-dev/lumina/internal/netguard"
)

const (
	logoCacheKeyPrefix  = "logo:"
	DefaultLogoCacheTTL = 10 * time.Minute
)

// LogoCache stores fetched logo bytes.
type LogoCache interface {
	// Get returns nil, nil on a cache miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// CachedLogoSource wraps a LogoSource with a cache and coalesces concurrent
// fetches of the same URL. The guard runs before the cache is consulted, so
// a cached logo is never served for a URL the current policy rejects.
type CachedLogoSource struct {
	next   LogoSource
	cache  LogoCache
	guard  *netguard.Guard
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedLogoSource creates a CachedLogoSource.
func NewCachedLogoSource(next LogoSource, cache LogoCache, guard *netguard.Guard, ttl time.Duration) *CachedLogoSource {
	if guard == nil {
		guard = netguard.New()
	}
	if ttl <= 0 {
		ttl = DefaultLogoCacheTTL
	}
	return &CachedLogoSource{
		next:   next,
		cache:  cache,
		guard:  guard,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

// Fetch returns the logo at rawURL from cache, or fetches and caches it.
// Cache failures are logged and fall through to the source.
func (s *CachedLogoSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := s.guard.Check(rawURL)
	if err != nil {
		return nil, err
	}
	key := logoCacheKey(u.String())

	data, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		s.logger.Warn("logo cache get failed", "key", key, "error", err)
	case data != nil:
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
		return data, nil
	default:
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()

		data, err := s.next.Fetch(ctx, u.String())
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
			s.logger.Warn("logo cache set failed", "key", key, "error", err)
		} else {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
		}
		return data, nil
	})
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

var _ LogoSource = (*CachedLogoSource)(nil)

func logoCacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return logoCacheKeyPrefix + hex.EncodeToString(sum[:])
}
