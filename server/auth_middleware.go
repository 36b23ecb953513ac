package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/guard"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys to avoid collisions
type ContextKey string

const (
	// ConsoleContextKey holds the browser's *Console.
	ConsoleContextKey ContextKey = "console"
)

// ConsoleFromContext returns the console attached by ConsoleMiddleware.
func ConsoleFromContext(ctx context.Context) (*Console, bool) {
	c, ok := ctx.Value(ConsoleContextKey).(*Console)
	return c, ok
}

// ConsoleMiddleware attaches the browser's console and starts its bootstrap. The request waits
// for bootstrap up to the configured limit; after that the guard sees a loading session.
func (s *Server) ConsoleMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.consoleFor(w, r)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to create console")
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
			return
		}

		if !c.Session.Bootstrapped() {
			go c.Session.Bootstrap(r.Context())
			s.awaitBootstrap(r.Context(), c)
		}

		ctx := context.WithValue(r.Context(), ConsoleContextKey, c)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) awaitBootstrap(ctx context.Context, c *Console) {
	wait := s.config.GetBootstrapWait()
	if wait <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	_, _ = c.Session.Await(ctx)
}

// GuardMiddleware applies the route guard to the request path. It must run after ConsoleMiddleware.
func (s *Server) GuardMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := ConsoleFromContext(r.Context())
		if !ok {
			http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
			return
		}

		page := guard.PageFor(r.URL.Path)
		decision := guard.Evaluate(c.Session.State(), guard.RequirementFor(r.URL.Path), requestedLocation(r), s.config.GetRootCompanyID())
		GuardDecisionsTotal.WithLabelValues(decision.Outcome.String()).Inc()

		switch decision.Outcome {
		case guard.Placeholder:
			s.renderLoading(w, r, page)
			return
		case guard.Redirect:
			redirectSuccess(w, r, decision.Location)
			return
		}

		ctx := apiclient.WithActivePage(r.Context(), page)
		next(w, r.WithContext(ctx))
	}
}

// requestedLocation is where the user should land after signing in. Form posts return to the
// page they were sent from rather than replaying the action.
func requestedLocation(r *http.Request) string {
	if r.Method == http.MethodGet {
		return r.URL.RequestURI()
	}
	return guard.PageFor(r.URL.Path)
}

// sessionLost reports whether err, or a redirect issued by the API client, means the session
// could not be recovered. In that case it has already sent the user to the login page.
func (s *Server) sessionLost(w http.ResponseWriter, r *http.Request, c *Console, err error) bool {
	_, navigated := c.TakeRedirect()
	if !navigated && !errors.Is(err, apiclient.ErrSessionExpired) {
		return false
	}
	if !navigated && c.Session.State().IsAuthenticated {
		c.Session.Expire(r.Context(), sessionExpiredMessage)
	}
	redirectSuccess(w, r, guard.LoginLocation(requestedLocation(r)))
	return true
}
