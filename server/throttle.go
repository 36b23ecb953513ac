package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// loginThrottle rate limits credential submissions per client address.
type loginThrottle struct {
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

// newLoginThrottle returns a nil throttle when perSecond is not positive, which allows everything.
func newLoginThrottle(perSecond float64, burst, size int) (*loginThrottle, error) {
	if perSecond <= 0 {
		return nil, nil
	}
	limiters, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("[newLoginThrottle] %w", err)
	}
	return &loginThrottle{limit: rate.Limit(perSecond), burst: max(1, burst), limiters: limiters}, nil
}

func (t *loginThrottle) Allow(key string) bool {
	if t == nil {
		return true
	}
	limiter := rate.NewLimiter(t.limit, t.burst)
	if prev, ok, _ := t.limiters.PeekOrAdd(key, limiter); ok {
		limiter = prev
	}
	return limiter.Allow()
}

// LoginThrottleMiddleware answers 429 once a client has used up its sign-in budget.
func (s *Server) LoginThrottleMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.throttle.Allow(ip) {
			LoginThrottledTotal.Inc()
			zerolog.Ctx(r.Context()).Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Sign-in throttled")
			w.Header().Set("Retry-After", "5")
			http.Error(w, "Too many attempts. Please wait a moment and try again.", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
