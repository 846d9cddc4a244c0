package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RouteLimit is a fixed-window ceiling: at most Max calls per Window for one
// identity on one route.
type RouteLimit struct {
    Max    int
    Window time.Duration
}

type RateLimitConfig struct {
    Enabled bool
    Prefix  string
    Captcha RouteLimit
    Path    RouteLimit
    Execute RouteLimit
    // LocalRPS and LocalBurst bound how many purchase attempts a single
    // process forwards to Redis per second.  Zero disables local shedding.
    LocalRPS   float64
    LocalBurst int
    Debug      bool
    // TrustedProxies lists CIDRs, beyond loopback and private ranges, whose
    // X-Forwarded-For entries are believed when resolving the client IP.
    TrustedProxies []string
}

func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled:    envBool("RATE_LIMIT_ENABLED", true),
        Prefix:     envStr("RATE_LIMIT_PREFIX", "ratelimit"),
        Captcha:    RouteLimit{Max: envInt("RATE_LIMIT_CAPTCHA_MAX", 3), Window: envDur("RATE_LIMIT_CAPTCHA_WINDOW", 5*time.Second)},
        Path:       RouteLimit{Max: envInt("RATE_LIMIT_PATH_MAX", 5), Window: envDur("RATE_LIMIT_PATH_WINDOW", 5*time.Second)},
        Execute:    RouteLimit{Max: envInt("RATE_LIMIT_EXECUTE_MAX", 3), Window: envDur("RATE_LIMIT_EXECUTE_WINDOW", 5*time.Second)},
        LocalRPS:   envFloat("RATE_LIMIT_LOCAL_RPS", 2000),
        LocalBurst: envInt("RATE_LIMIT_LOCAL_BURST", 4000),
        Debug:      envBool("RATE_LIMIT_DEBUG", false),

        TrustedProxies: envList("TRUSTED_PROXIES"),
    }
    for _, rl := range []*RouteLimit{&def.Captcha, &def.Path, &def.Execute} {
        if rl.Max < 1 { rl.Max = 1 }
        if rl.Window < time.Second { rl.Window = time.Second }
    }
    if def.LocalBurst < 1 { def.LocalBurst = 1 }
    return def
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch v {
    case "1","true","TRUE","True","yes","YES","on","ON": return true
    case "0","false","FALSE","False","no","NO","off","OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envFloat(k string, d float64) float64 {
    v := os.Getenv(k); if v == "" { return d }
    if f, err := strconv.ParseFloat(v, 64); err == nil { return f }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
func envList(k string) []string {
    var out []string
    for _, p := range strings.Split(os.Getenv(k), ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}
