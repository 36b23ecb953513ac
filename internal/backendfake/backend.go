// Package backendfake is an in-process stand-in for the auth backend REST API. It issues real
// HS256 access tokens, rotates refresh tokens, tracks sessions and records every call so tests can
// assert on traffic.
package backendfake

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-console/authapi"
)

const (
	DefaultPrefix     = "/api/v1"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	RootCompanyID     = 1
)

type user struct {
	authapi.UserProfile
	password string
}

// Backend is the fake REST backend.
type Backend struct {
	mu sync.Mutex

	signer     *hmacSigner
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
	prefix     string

	users         map[int64]*user
	refreshTokens map[string]storedRefresh
	sessions      map[int64]*authapi.UserSession
	resetTokens   map[string]int64
	resetRequests []string
	entities      map[string]map[int64]map[string]any
	nextID        int64

	calls    map[string]int
	failures map[string]int
	server   *httptest.Server
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the time source used for token issue and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(b *Backend) { b.accessTTL = d }
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(d time.Duration) Option {
	return func(b *Backend) { b.refreshTTL = d }
}

// WithSecret sets the HMAC signing secret.
func WithSecret(secret string) Option {
	return func(b *Backend) { b.signer = &hmacSigner{secret: []byte(secret)} }
}

// New creates a backend without starting a listener. Use Handler or Start.
func New(opts ...Option) *Backend {
	b := &Backend{
		signer:        &hmacSigner{secret: []byte("backendfake-secret")},
		now:           time.Now,
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		prefix:        DefaultPrefix,
		users:         make(map[int64]*user),
		refreshTokens: make(map[string]storedRefresh),
		sessions:      make(map[int64]*authapi.UserSession),
		resetTokens:   make(map[string]int64),
		entities:      make(map[string]map[int64]map[string]any),
		calls:         make(map[string]int),
		failures:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start serves the backend on a loopback listener and returns its URL (without the API prefix).
func (b *Backend) Start() string {
	b.server = httptest.NewServer(b.Handler())
	return b.server.URL
}

// URL returns the listener URL, or "" before Start.
func (b *Backend) URL() string {
	if b.server == nil {
		return ""
	}
	return b.server.URL
}

// Close stops the listener.
func (b *Backend) Close() {
	if b.server != nil {
		b.server.Close()
	}
}

func (b *Backend) id() int64 {
	b.nextID++
	return b.nextID
}

// AddUser registers a user who can log in with password. A zero ID is assigned.
func (b *Backend) AddUser(p authapi.UserProfile, password string) authapi.UserProfile {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.ID == 0 {
		p.ID = b.id()
	} else if p.ID > b.nextID {
		b.nextID = p.ID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = b.now().UTC()
	}
	b.users[p.ID] = &user{UserProfile: p, password: password}
	return p
}

// IssueTokens signs a user in without going through /auth/login.
func (b *Backend) IssueTokens(userID int64) (authapi.TokenPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[userID]
	if !ok {
		return authapi.TokenPair{}, errUnknownUser
	}
	tr, err := b.issuePair(u, b.openSession(u, "backendfake", "127.0.0.1").ID)
	if err != nil {
		return authapi.TokenPair{}, err
	}
	return authapi.TokenPair{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken, TokenType: tr.TokenType}, nil
}

// ExpiredAccessToken signs a correctly formed access token that expired a minute ago.
func (b *Backend) ExpiredAccessToken(userID int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[userID]
	if !ok {
		return "", errUnknownUser
	}
	return b.mintAccess(u, -time.Minute)
}

// AddResetToken makes token valid for one password reset of userID.
func (b *Backend) AddResetToken(token string, userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetTokens[token] = userID
}

// ResetRequests returns the emails password resets were requested for.
func (b *Backend) ResetRequests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.resetRequests...)
}

// CheckPassword reports whether password is the current password of username.
func (b *Backend) CheckPassword(username, password string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.userByName(username)
	return u != nil && u.password == password
}

// Seed adds an entity to a collection ("/roles", "/companies", ...) and returns its id.
func (b *Backend) Seed(collection string, fields map[string]any) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insert(collection, fields)
}

// SessionCount returns the number of live sessions.
func (b *Backend) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Calls returns how often a route was hit, e.g. Calls("POST /auth/refresh").
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Routes lists every route that was hit, sorted.
func (b *Backend) Routes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	routes := make([]string, 0, len(b.calls))
	for r := range b.calls {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}

// ResetCalls forgets recorded traffic.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
}

// Fail makes route answer with status until ClearFailures.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = status
}

// ClearFailures removes every injected failure.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]int)
}

// Handler returns the backend's HTTP handler.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	b.registerRoutes(mux)
	return b.record(mux)
}

func (b *Backend) userByName(username string) *user {
	for _, u := range b.users {
		if u.Username == username || u.Email == username {
			return u
		}
	}
	return nil
}

func (b *Backend) openSession(u *user, userAgent, ip string) *authapi.UserSession {
	now := b.now().UTC()
	s := &authapi.UserSession{
		ID:           b.id(),
		UserID:       u.ID,
		Username:     u.Username,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(b.refreshTTL),
	}
	b.sessions[s.ID] = s
	return s
}

func (b *Backend) closeSession(id int64) {
	delete(b.sessions, id)
	for token, rt := range b.refreshTokens {
		if rt.SessionID == id {
			delete(b.refreshTokens, token)
		}
	}
}

func (b *Backend) insert(collection string, fields map[string]any) int64 {
	items, ok := b.entities[collection]
	if !ok {
		items = make(map[int64]map[string]any)
		b.entities[collection] = items
	}
	id := b.id()
	item := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		item[k] = v
	}
	item["id"] = id
	items[id] = item
	return id
}
