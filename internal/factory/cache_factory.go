package factory

import (
	"time"

	"github.com/mikey/llm-mail-triage/internal/adapters/cache"
	"github.com/mikey/llm-mail-triage/internal/config"
	"go.uber.org/zap"
)

// CacheFactory creates the classification cache
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCacheRepository creates the in-memory cache. Classifications are
// only reused within one process; the audit store is the durable record.
func (f *CacheFactory) CreateCacheRepository() *cache.MemoryCache {
	return cache.NewMemoryCache(f.logger, f.cfg.GetCache().CleanupFrequency)
}

// GetCacheTTL returns the configured cache TTL
func (f *CacheFactory) GetCacheTTL() time.Duration {
	return f.cfg.GetCache().TTL
}

// IsCacheEnabled returns whether caching is enabled
func (f *CacheFactory) IsCacheEnabled() bool {
	return f.cfg.GetCache().Enabled
}
