package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hoofbeat/hoofbeat/internal/logging"
)

// Served content is expected to change at any moment, so nothing may be
// cached, success and error responses alike.
const cacheControlValue = "no-store"

// noStoreMiddleware stamps every response with Cache-Control: no-store.
func noStoreMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", cacheControlValue)
		next.ServeHTTP(w, r)
	})
}

// logMiddleware logs each request with its duration.
func logMiddleware(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug(r.Context(), "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).String(),
		)
	})
}

// hostLimiter rate-limits requests per remote host with a token bucket
// per host. The map is bounded; when it fills up it is reset wholesale,
// which briefly refreshes everyone's allowance rather than letting the
// map grow without bound.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

const maxTrackedHosts = 1024

func newHostLimiter(perSecond float64, burst int) *hostLimiter {
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (h *hostLimiter) allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	lim, ok := h.limiters[host]
	if !ok {
		if len(h.limiters) >= maxTrackedHosts {
			h.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = lim
	}
	return lim.Allow()
}

// rateLimitMiddleware answers 429 for hosts over their request budget.
func rateLimitMiddleware(limiter *hostLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(r.RemoteAddr) {
			http.Error(w, "HTTP 429. Too many requests.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
