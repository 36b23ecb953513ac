package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/guard"
	"github.com/jrsteele09/go-auth-console/session"
	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/rs/zerolog/log"
)

const (
	// consoleCookieName identifies a browser. Its value namespaces the browser's token store.
	consoleCookieName = "console_id"
	consoleCookieAge  = 30 * 24 * 60 * 60

	sessionExpiredMessage = "Your session has expired. Please sign in again."
)

// Console is everything one browser's session needs: its slice of token storage, the API client
// reading from it, and the session controller on top.
type Console struct {
	ID      string
	Store   tokenstore.Store
	Client  *apiclient.Client
	API     *authapi.Service
	Session *session.Controller

	pendingRedirect atomic.Pointer[string]
}

// Navigate is called by the API client when a refresh failed for a page that needs a session.
// The session is reset right away and the redirect is handed to whichever handler renders next.
func (c *Console) Navigate(ctx context.Context, path string) {
	c.Session.Expire(ctx, sessionExpiredMessage)
	c.pendingRedirect.Store(&path)
}

// TakeRedirect returns and clears a redirect issued by Navigate.
func (c *Console) TakeRedirect() (string, bool) {
	p := c.pendingRedirect.Swap(nil)
	if p == nil {
		return "", false
	}
	return *p, true
}

// ConsoleRegistry keeps the most recently used consoles in memory. An evicted console loses only
// its in-memory session; its tokens stay in storage and the next request bootstraps again.
type ConsoleRegistry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *Console]
	factory func(id string) (*Console, error)
}

// NewConsoleRegistry creates a registry holding at most size consoles.
func NewConsoleRegistry(size int, factory func(id string) (*Console, error)) (*ConsoleRegistry, error) {
	cache, err := lru.NewWithEvict(size, func(id string, _ *Console) {
		log.Debug().Str("console", shortID(id)).Msg("Console evicted")
	})
	if err != nil {
		return nil, fmt.Errorf("[NewConsoleRegistry] %w", err)
	}
	return &ConsoleRegistry{cache: cache, factory: factory}, nil
}

// Get returns the console for id, creating it on first use.
func (r *ConsoleRegistry) Get(id string) (*Console, error) {
	if c, ok := r.cache.Get(id); ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache.Get(id); ok {
		return c, nil
	}
	c, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, c)
	ConsolesActive.Set(float64(r.cache.Len()))
	return c, nil
}

// Len is the number of consoles in memory.
func (r *ConsoleRegistry) Len() int {
	return r.cache.Len()
}

// newConsole wires the per-browser stack.
func (s *Server) newConsole(id string) (*Console, error) {
	c := &Console{ID: id, Store: s.storage.For(id)}
	logger := log.With().Str("console", shortID(id)).Logger()

	policy := apiclient.DefaultRedirectPolicy()
	policy.LoginRoute = RouteLogin
	policy.PublicRoutes = []apiclient.RoutePredicate{apiclient.ExactRoutes(guard.PublicRoutes()...)}

	opts := []apiclient.Option{
		apiclient.WithPrefix(s.config.GetAPIPrefix()),
		apiclient.WithTimeout(s.config.GetRequestTimeout()),
		apiclient.WithNavigator(c),
		apiclient.WithRedirectPolicy(policy),
		apiclient.WithRefreshObserver(func(p tokenstore.Pair) { c.Session.TokensRefreshed(p) }),
		apiclient.WithLogger(logger),
	}
	if s.config.GetRefreshCoalescing() {
		opts = append(opts, apiclient.WithRefreshCoalescing())
	}
	if limiter := s.newAPILimiter(); limiter != nil {
		opts = append(opts, apiclient.WithRateLimiter(limiter))
	}

	client, err := apiclient.New(s.config.GetAPIBaseURL(), c.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("[Server newConsole] %w", err)
	}
	api, err := authapi.New(client)
	if err != nil {
		return nil, fmt.Errorf("[Server newConsole] %w", err)
	}

	c.Client = client
	c.API = api
	c.Session = session.NewController(api, c.Store, session.WithLogger(logger))
	return c, nil
}

// consoleFor resolves the browser's console, issuing a new console cookie when there is none.
func (s *Server) consoleFor(w http.ResponseWriter, r *http.Request) (*Console, error) {
	id := ""
	if cookie, err := r.Cookie(consoleCookieName); err == nil {
		if parsed, err := uuid.Parse(cookie.Value); err == nil {
			id = parsed.String()
		}
	}
	if id == "" {
		id = uuid.New().String()
		s.setConsoleCookie(w, r, id)
	}
	return s.consoles.Get(id)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
