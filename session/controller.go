// Package session owns the console's authentication state: it restores a session from stored
// tokens on startup and performs login, logout and profile updates.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/authapi"
	cerrors "github.com/jrsteele09/go-auth-console/internal/errors"
	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AuthService is the part of the backend API the controller drives.
type AuthService interface {
	Login(ctx context.Context, creds authapi.Credentials) (*authapi.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*authapi.TokenPair, error)
	CurrentUser(ctx context.Context) (*authapi.UserProfile, error)
	UpdateCurrentUser(ctx context.Context, patch authapi.UserUpdate) (*authapi.UserProfile, error)
}

var _ AuthService = (*authapi.Service)(nil)

type bootstrapPhase int32

const (
	bootstrapNotStarted bootstrapPhase = iota
	bootstrapInProgress
	bootstrapDone
)

// Controller holds one user's session. It is safe for concurrent use.
type Controller struct {
	auth   AuthService
	store  tokenstore.Store
	now    func() time.Time
	leeway time.Duration
	logger zerolog.Logger

	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int

	phase atomic.Int32
	ready chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source used to judge access token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithExpiryLeeway treats access tokens expiring within d as already expired.
func WithExpiryLeeway(d time.Duration) Option {
	return func(c *Controller) { c.leeway = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller in the loading state. Call Bootstrap to settle it.
func NewController(auth AuthService, store tokenstore.Store, opts ...Option) *Controller {
	c := &Controller{
		auth:      auth,
		store:     store,
		now:       time.Now,
		logger:    log.Logger,
		state:     InitialState(),
		listeners: make(map[int]func(State)),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe registers fn to be called with every new state. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Controller) dispatch(e Event) State {
	c.mu.Lock()
	c.state = Reduce(c.state, e)
	next := c.state
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	c.logger.Debug().Stringer("event", e.Type).Bool("authenticated", next.IsAuthenticated).Msg("Session event")
	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// Ready is closed once bootstrap has settled.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Bootstrapped reports whether bootstrap has settled.
func (c *Controller) Bootstrapped() bool {
	return bootstrapPhase(c.phase.Load()) == bootstrapDone
}

// Await waits for bootstrap to settle or ctx to end.
func (c *Controller) Await(ctx context.Context) (State, error) {
	select {
	case <-c.ready:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Bootstrap restores the session from the stored tokens. Only the first call runs; later and
// concurrent calls return at once and can wait on Ready.
//
// The run is detached from ctx cancellation so an abandoned request cannot leave the session
// loading forever. Deadlines still come from the API client's timeout.
func (c *Controller) Bootstrap(ctx context.Context) {
	if !c.phase.CompareAndSwap(int32(bootstrapNotStarted), int32(bootstrapInProgress)) {
		return
	}
	ctx = context.WithoutCancel(ctx)

	user, pair, outcome, err := c.restore(ctx)
	switch {
	case err != nil:
		c.logger.Info().Err(err).Msg("Stored session could not be restored")
		if clearErr := tokenstore.ClearPair(ctx, c.store); clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("Failed to clear stored tokens")
		}
		c.dispatch(Event{Type: EventSettled})
	case user == nil:
		c.dispatch(Event{Type: EventSettled})
	default:
		c.dispatch(Event{Type: EventLoginSuccess, User: user, Pair: pair})
	}
	BootstrapTotal.WithLabelValues(outcome).Inc()

	c.phase.Store(int32(bootstrapDone))
	close(c.ready)
}

// restore returns a nil user when there is nothing to restore.
func (c *Controller) restore(ctx context.Context) (*authapi.UserProfile, tokenstore.Pair, string, error) {
	pair, err := tokenstore.LoadPair(ctx, c.store)
	if err != nil {
		return nil, pair, "failed", err
	}
	if pair.Empty() {
		return nil, pair, "anonymous", nil
	}

	expired := true
	if pair.AccessToken != "" {
		exp, err := AccessTokenExpiry(pair.AccessToken)
		if err != nil {
			return nil, pair, "failed", err
		}
		expired = !c.now().Add(c.leeway).Before(exp)
	}

	outcome := "restored"
	if expired {
		if pair.RefreshToken == "" {
			return nil, pair, "failed", cerrors.ErrNoRefreshToken
		}
		fresh, err := c.auth.Refresh(ctx, pair.RefreshToken)
		if err != nil {
			return nil, pair, "failed", fmt.Errorf("refresh: %w", err)
		}
		previous := pair.RefreshToken
		pair = tokenstore.Pair{AccessToken: fresh.AccessToken, RefreshToken: fresh.RefreshToken}
		if pair.RefreshToken == "" {
			pair.RefreshToken = previous
		}
		if err := tokenstore.SavePair(ctx, c.store, pair); err != nil {
			return nil, pair, "failed", err
		}
		outcome = "refreshed"
	}
	if !pair.Complete() {
		return nil, pair, "failed", cerrors.ErrNoRefreshToken
	}

	user, err := c.auth.CurrentUser(ctx)
	if err != nil {
		return nil, pair, "failed", fmt.Errorf("current user: %w", err)
	}

	// The API client may have refreshed behind our back while fetching the user.
	if stored, err := tokenstore.LoadPair(ctx, c.store); err == nil && stored.Complete() {
		pair = stored
	}
	return user, pair, outcome, nil
}

// Login signs in with creds. On failure the stored tokens are cleared, State.Error is set and the
// error is returned for the caller to react to.
func (c *Controller) Login(ctx context.Context, creds authapi.Credentials) error {
	c.dispatch(Event{Type: EventLoginStart})

	user, pair, err := c.login(ctx, creds)
	if err != nil {
		if clearErr := tokenstore.ClearPair(ctx, c.store); clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("Failed to clear tokens after failed login")
		}
		LoginsTotal.WithLabelValues("failure").Inc()
		c.dispatch(Event{Type: EventLoginFailure, Error: loginMessage(err)})
		return err
	}

	LoginsTotal.WithLabelValues("success").Inc()
	c.dispatch(Event{Type: EventLoginSuccess, User: user, Pair: pair})
	c.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("User signed in")
	return nil
}

func (c *Controller) login(ctx context.Context, creds authapi.Credentials) (*authapi.UserProfile, tokenstore.Pair, error) {
	tp, err := c.auth.Login(ctx, creds)
	if err != nil {
		return nil, tokenstore.Pair{}, err
	}
	pair := tokenstore.Pair{AccessToken: tp.AccessToken, RefreshToken: tp.RefreshToken}
	if !pair.Complete() {
		return nil, pair, cerrors.ErrNoRefreshToken
	}
	if err := tokenstore.SavePair(ctx, c.store, pair); err != nil {
		return nil, pair, err
	}
	user, err := c.auth.CurrentUser(ctx)
	if err != nil {
		return nil, pair, err
	}
	return user, pair, nil
}

func loginMessage(err error) string {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, cerrors.ErrNoRefreshToken):
		return "Sign in did not return a usable session. Please try again."
	case errors.As(err, &apiErr) && (apiErr.Status == 400 || apiErr.Status == 401):
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return cerrors.ErrInvalidCredentials.Error()
	default:
		return apiclient.UserMessage(err)
	}
}

// Logout ends the session. The server call is best effort; the local session is always cleared.
func (c *Controller) Logout(ctx context.Context) {
	refreshToken := c.State().RefreshToken
	if refreshToken == "" {
		stored, err := c.store.Get(ctx, tokenstore.RefreshToken)
		if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
			c.logger.Warn().Err(err).Msg("Token store read failed, skipping server logout")
		}
		refreshToken = stored
	}
	if refreshToken != "" {
		if err := c.auth.Logout(ctx, refreshToken); err != nil {
			c.logger.Warn().Err(err).Msg("Server logout failed")
		}
	}

	if err := tokenstore.ClearPair(ctx, c.store); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear stored tokens on logout")
	}
	c.dispatch(Event{Type: EventLogout})
}

// UpdateUser applies patch to the current user and replaces the snapshot.
func (c *Controller) UpdateUser(ctx context.Context, patch authapi.UserUpdate) error {
	if !c.State().IsAuthenticated {
		return cerrors.ErrNotAuthenticated
	}
	user, err := c.auth.UpdateCurrentUser(ctx, patch)
	if err != nil {
		c.dispatch(Event{Type: EventUpdateFailure, Error: apiclient.UserMessage(err)})
		return err
	}
	c.dispatch(Event{Type: EventUserUpdated, User: user})
	return nil
}

// ClearError clears State.Error and nothing else.
func (c *Controller) ClearError() {
	c.dispatch(Event{Type: EventErrorCleared})
}

// TokensRefreshed records a pair the API client obtained on its own.
func (c *Controller) TokensRefreshed(pair tokenstore.Pair) {
	c.dispatch(Event{Type: EventTokenRefreshed, Pair: pair})
}

// Expire resets the session after a refresh failed mid-session.
func (c *Controller) Expire(ctx context.Context, reason string) {
	if err := tokenstore.ClearPair(ctx, c.store); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear stored tokens on expiry")
	}
	c.dispatch(Event{Type: EventExpired, Error: reason})
}
