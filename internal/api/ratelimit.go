package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginLimiter throttles login attempts per client address.
type loginLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleVisitor is how long an address may stay quiet before its limiter is
// dropped.
const idleVisitor = 10 * time.Minute

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &loginLimiter{limit: limit, burst: burst, limiters: make(map[string]*visitor)}
}

// Allow reports whether addr may attempt another login now.
func (l *loginLimiter) Allow(addr string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range l.limiters {
		if now.Sub(v.lastSeen) > idleVisitor {
			delete(l.limiters, k)
		}
	}

	v, ok := l.limiters[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[addr] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// clientAddr returns the host part of the request's remote address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
