package config

import "time"

// LoginThrottleConfig bounds POST /api/admin/login per client address.
// Every attempt counts, successful or not, and the counter resets only when
// the window elapses.
type LoginThrottleConfig struct {
    MaxAttempts int
    Window      time.Duration
    Prefix      string
}

func LoadLoginThrottleConfig() LoginThrottleConfig {
    c := LoginThrottleConfig{
        MaxAttempts: envInt("LOGIN_MAX_ATTEMPTS", 5),
        Window:      envDur("LOGIN_WINDOW", 10*time.Minute),
        Prefix:      envStr("LOGIN_THROTTLE_PREFIX", "login"),
    }
    if c.MaxAttempts < 1 { c.MaxAttempts = 1 }
    return c
}

// RateLimitConfig drives the token bucket guarding public review submission.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 5),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Minute),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    if def.Capacity < 1 { def.Capacity = 1 }
    if def.RefillTokens < 1 { def.RefillTokens = 1 }
    minTTL := 5 * def.RefillInterval
    if def.TTL < minTTL { def.TTL = minTTL }
    return def
}
