package apiclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const headerRequestID = "X-Request-ID"

// transport stamps a request ID on every request leaving the console and meters it, including the
// ones that bypass the interceptors (refresh, login).
type transport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func newTransport(next http.RoundTripper, limiter *rate.Limiter) *transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &transport{next: next, limiter: limiter}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	if req.Header.Get(headerRequestID) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(headerRequestID, uuid.New().String())
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, err
	}
	RequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}
