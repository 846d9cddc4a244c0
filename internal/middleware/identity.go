package middleware

// identity.go holds the helpers that tell who is calling: the authenticated
// user stored by JWTAuth and the client IP behind any proxies.

import (
    "net"
    "strconv"

    "github.com/labstack/echo/v4"
)

const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// UserID returns the authenticated user id stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok && id > 0
}

// Role returns the authenticated role stored by JWTAuth, or "".
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// IPExtractor resolves the client address from X-Forwarded-For, believing
// only hops that come from loopback, private networks or the given CIDRs.
// Malformed CIDRs are skipped.
func IPExtractor(trusted []string) echo.IPExtractor {
    opts := []echo.TrustOption{
        echo.TrustLoopback(true),
        echo.TrustLinkLocal(true),
        echo.TrustPrivateNet(true),
    }
    for _, cidr := range trusted {
        if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
            opts = append(opts, echo.TrustIPRange(ipNet))
        }
    }
    return echo.ExtractIPFromXFFHeader(opts...)
}

// identity is the rate-limit subject: the user id when authenticated,
// otherwise the client IP.
func identity(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    return "ip:" + ip
}
