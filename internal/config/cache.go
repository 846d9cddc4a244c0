package config

import "time"

// CacheConfig defines settings for the catalog read cache.  The listing of
// all activities lives under a single key so that the availability
// scheduler can invalidate it in one DEL; details are cached per activity.
type CacheConfig struct {
    Enabled   bool
    ListTTL   time.Duration
    DetailTTL time.Duration
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
// Defaults are used when variables are not set.
func LoadCacheConfig() CacheConfig {
    cfg := CacheConfig{
        Enabled:   envBool("CACHE_ENABLED", true),
        ListTTL:   envDur("CACHE_LIST_TTL", 60*time.Second),
        DetailTTL: envDur("CACHE_DETAIL_TTL", 60*time.Second),
    }
    if cfg.ListTTL <= 0 { cfg.ListTTL = time.Minute }
    if cfg.DetailTTL <= 0 { cfg.DetailTTL = time.Minute }
    return cfg
}
