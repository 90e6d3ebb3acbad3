package config

import "time"

// RateLimitConfig drives the token bucket that guards the credential
// endpoints (login, password reset).  Buckets live in Redis when it is
// reachable and in process memory otherwise.
type RateLimitConfig struct {
    Enabled        bool          `koanf:"enabled"`
    Capacity       int           `koanf:"capacity"`        // bucket size
    RefillTokens   int           `koanf:"refill_tokens"`   // tokens added per interval
    RefillInterval time.Duration `koanf:"refill_interval"`
    TTL            time.Duration `koanf:"ttl"`             // idle bucket expiry in Redis
    KeyStrategy    string        `koanf:"key_strategy"`    // ip, user, route or a combination
    Prefix         string        `koanf:"prefix"`
    Debug          bool          `koanf:"debug"`
}

func defaultRateLimit() RateLimitConfig {
    return RateLimitConfig{
        Enabled:        true,
        Capacity:       10,
        RefillTokens:   1,
        RefillInterval: 6 * time.Second,
        TTL:            10 * time.Minute,
        KeyStrategy:    "ip_route",
        Prefix:         "rl",
    }
}

// normalize clamps values that would make the bucket useless.
func (r *RateLimitConfig) normalize() {
    if r.Capacity < 1 { r.Capacity = 1 }
    if r.RefillTokens < 1 { r.RefillTokens = 1 }
    if r.RefillInterval <= 0 { r.RefillInterval = time.Second }
    minTTL := 5 * r.RefillInterval
    if r.TTL < minTTL { r.TTL = minTTL }
}
