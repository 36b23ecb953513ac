// Package apiclient is the request pipeline every backend call goes through. It attaches the
// stored access token to outgoing requests and recovers a 401 by refreshing the token pair once
// and replaying the request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Backend paths the client itself needs to know about.
const (
	PathLogin       = "/auth/login"
	PathLogout      = "/auth/logout"
	PathRefresh     = "/auth/refresh"
	PathCurrentUser = "/users/me"
)

const (
	DefaultPrefix  = "/api/v1"
	DefaultTimeout = 10 * time.Second
)

// TokenResponse is the token pair as the backend returns it from login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Client dispatches API requests with the token interceptors applied.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      tokenstore.Store
	policy     RedirectPolicy
	navigator  Navigator
	onRefresh  func(tokenstore.Pair)
	coalesce   bool
	refreshes  singleflight.Group
	redirected atomic.Bool
	logger     zerolog.Logger

	// construction-time settings
	prefix    string
	timeout   time.Duration
	limiter   *rate.Limiter
	roundTrip http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithPrefix overrides the versioned path prefix ("/api/v1").
func WithPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = prefix }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRoundTripper replaces the underlying transport (tests, proxies).
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) { c.roundTrip = rt }
}

// WithRateLimiter throttles outgoing requests.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithNavigator sets who performs the redirect to login after an unrecoverable 401.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// WithRedirectPolicy replaces DefaultRedirectPolicy.
func WithRedirectPolicy(p RedirectPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithRefreshObserver is called with the new pair after every successful interceptor refresh.
func WithRefreshObserver(fn func(tokenstore.Pair)) Option {
	return func(c *Client) { c.onRefresh = fn }
}

// WithRefreshCoalescing makes concurrent 401s share one refresh call instead of each
// refreshing on their own.
func WithRefreshCoalescing() Option {
	return func(c *Client) { c.coalesce = true }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL (scheme and host, no prefix).
func New(baseURL string, store tokenstore.Store, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[apiclient New] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[apiclient New] token store is required")
	}

	c := &Client{
		store:   store,
		policy:  DefaultRedirectPolicy(),
		logger:  log.Logger,
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.baseURL = strings.TrimSuffix(baseURL, "/") + c.prefix
	c.httpClient = &http.Client{
		Timeout:   c.timeout,
		Transport: newTransport(c.roundTrip, c.limiter),
	}
	return c, nil
}

// BaseURL returns the backend URL including the API prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient exposes the instrumented client without interceptors, for flows that must not
// carry or refresh a bearer token.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Store returns the token store the interceptors read from.
func (c *Client) Store() tokenstore.Store {
	return c.store
}

// ResetRedirect re-arms the login redirect after the user has signed in again.
func (c *Client) ResetRedirect() {
	c.redirected.Store(false)
}

// Do sends req and decodes a 2xx JSON body into out (out may be nil).
//
// A 401 on a request that has not been retried triggers one refresh of the stored token pair
// followed by exactly one re-dispatch. A 401 on the retry itself is returned as is.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	err := c.execute(ctx, req, out)
	if err == nil || !errors.Is(err, ErrUnauthorized) || req.Retried() || req.skipRefresh {
		return err
	}

	retry := req.Retry()
	if _, refreshErr := c.refreshTokens(ctx); refreshErr != nil {
		if errors.Is(refreshErr, ErrNoRefreshToken) {
			return err
		}
		c.handleRefreshFailure(ctx, req, refreshErr)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return c.execute(ctx, retry, out)
}

// Get is Do for a GET without a body.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, NewRequest(http.MethodGet, path), out)
}

// Post sends in as JSON (nil for no body).
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

// Put sends in as JSON.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, NewRequest(http.MethodDelete, path), nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	req := NewRequest(method, path)
	if in != nil {
		var err error
		if req, err = req.WithJSON(in); err != nil {
			return err
		}
	}
	return c.Do(ctx, req, out)
}

// execute performs one dispatch. The bearer header is read from the store at this moment, so a
// retry picks up the pair written by the refresh.
func (c *Client) execute(ctx context.Context, req Request, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url(c.baseURL), req.bodyReader())
	if err != nil {
		return fmt.Errorf("[Client.execute] %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	access, err := c.store.Get(ctx, tokenstore.AccessToken)
	switch {
	case err == nil && access != "":
		httpReq.Header.Set("Authorization", "Bearer "+access)
	case err != nil && !errors.Is(err, tokenstore.ErrNotFound):
		c.logger.Warn().Err(err).Str("path", req.path).Msg("Token store read failed, sending unauthenticated")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.method, req.path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(req.method, req.path, resp, out)
}

func decodeResponse(method, path string, resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s %s: read body: %w", ErrNetwork, method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseError(method, path, resp.StatusCode, body)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("[apiclient] %s %s: decode response: %w", method, path, err)
	}
	return nil
}

// refreshTokens exchanges the stored refresh token for a new pair and persists it.
func (c *Client) refreshTokens(ctx context.Context) (tokenstore.Pair, error) {
	refreshToken, err := c.store.Get(ctx, tokenstore.RefreshToken)
	if errors.Is(err, tokenstore.ErrNotFound) || (err == nil && refreshToken == "") {
		return tokenstore.Pair{}, ErrNoRefreshToken
	}
	if err != nil {
		return tokenstore.Pair{}, fmt.Errorf("[Client.refreshTokens] read refresh token: %w", err)
	}

	if !c.coalesce {
		return c.refreshAndStore(ctx, refreshToken)
	}

	// Waiters holding the same refresh token share one call. The shared call must not die with
	// whichever caller happened to start it.
	// shared is also true for the caller that ran the refresh; only waiters count as shared.
	var led bool
	v, err, shared := c.refreshes.Do(refreshToken, func() (any, error) {
		led = true
		return c.refreshAndStore(context.WithoutCancel(ctx), refreshToken)
	})
	if shared && !led {
		recordRefresh("shared")
	}
	if err != nil {
		return tokenstore.Pair{}, err
	}
	return v.(tokenstore.Pair), nil
}

func (c *Client) refreshAndStore(ctx context.Context, refreshToken string) (tokenstore.Pair, error) {
	tr, err := RefreshTokens(ctx, c.httpClient, c.baseURL, refreshToken)
	if err != nil {
		recordRefresh("failure")
		return tokenstore.Pair{}, err
	}

	pair := tokenstore.Pair{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken // backend kept the old one
	}
	if err := tokenstore.SavePair(ctx, c.store, pair); err != nil {
		recordRefresh("failure")
		return tokenstore.Pair{}, fmt.Errorf("[Client.refreshAndStore] %w", err)
	}
	recordRefresh("success")
	c.logger.Debug().Msg("Access token refreshed")

	if c.onRefresh != nil {
		c.onRefresh(pair)
	}
	return pair, nil
}

// handleRefreshFailure clears the stored pair and, when the policy allows, issues the one
// redirect to the login route.
func (c *Client) handleRefreshFailure(ctx context.Context, req Request, refreshErr error) {
	if err := tokenstore.ClearPair(ctx, c.store); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear tokens after refresh failure")
	}
	c.logger.Info().Err(refreshErr).Str("path", req.path).Msg("Token refresh failed, session cleared")

	if c.navigator == nil || !c.policy.shouldRedirect(ctx, req) {
		return
	}
	if !c.redirected.CompareAndSwap(false, true) {
		return
	}
	RedirectsTotal.Inc()
	c.navigator.Navigate(ctx, c.policy.LoginRoute)
}

// RefreshTokens calls the refresh endpoint directly with hc, bypassing the interceptors.
// baseURL includes the API prefix.
func RefreshTokens(ctx context.Context, hc *http.Client, baseURL, refreshToken string) (*TokenResponse, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("[apiclient RefreshTokens] %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+PathRefresh, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[apiclient RefreshTokens] %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", ErrNetwork, PathRefresh, err)
	}
	defer resp.Body.Close()

	var tr TokenResponse
	if err := decodeResponse(http.MethodPost, PathRefresh, resp, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("[apiclient RefreshTokens] response missing access_token")
	}
	return &tr, nil
}
