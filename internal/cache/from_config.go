package cache

import (
	"log/slog"
	"strings"

	"dynamics-archiver-go/internal/config"
)

// NewFromConfig builds the configured cache backend. Unusable configurations
// degrade to the in-memory cache rather than failing the whole run; "none"
// disables caching entirely and returns nil.
func NewFromConfig(cfg config.Config) Cache {
	switch strings.ToLower(strings.TrimSpace(cfg.CacheBackend)) {
	case "redis":
		addr := strings.TrimSpace(cfg.RedisAddr)
		if addr == "" {
			slog.Warn("cache backend redis selected but REDIS_ADDR is empty, using memory")
			return NewMemoryCache()
		}
		rc, err := NewRedisCache(RedisOptions{
			Addr:     addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisKeyPrefix,
		})
		if err != nil {
			slog.Warn("redis cache unavailable, using memory", "err", err)
			return NewMemoryCache()
		}
		return rc
	case "none", "disabled", "off":
		return nil
	default:
		return NewMemoryCache()
	}
}
