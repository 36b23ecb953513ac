package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// backend is a scripted API: /api/v1/items accepts one bearer token, /api/v1/auth/refresh
// swaps the refresh token for a new pair.
type backend struct {
	mu            sync.Mutex
	validAccess   string
	validRefresh  string
	refreshStatus int
	refreshDelay  time.Duration
	omitRefresh   bool

	itemCalls    atomic.Int32
	refreshCalls atomic.Int32
	bearers      []string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		if b.refreshDelay > 0 {
			time.Sleep(b.refreshDelay)
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.refreshStatus != 0 {
			writeJSON(w, b.refreshStatus, map[string]string{"detail": "Invalid refresh token"})
			return
		}
		if body.RefreshToken != b.validRefresh {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid refresh token"})
			return
		}
		b.validAccess = "access-refreshed"
		resp := map[string]string{"access_token": b.validAccess, "token_type": "bearer"}
		if !b.omitRefresh {
			b.validRefresh = "refresh-rotated"
			resp["refresh_token"] = b.validRefresh
		}
		writeJSON(w, http.StatusOK, resp)
	})

	items := func(w http.ResponseWriter, r *http.Request) {
		b.itemCalls.Add(1)
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.bearers = append(b.bearers, auth)
		ok := auth == "Bearer "+b.validAccess
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "first"}})
	}
	mux.HandleFunc("GET /api/v1/items", items)
	mux.HandleFunc("GET /api/v1/users/me", items)

	mux.HandleFunc("GET /api/v1/forbidden", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Not enough permissions"})
	})
	mux.HandleFunc("POST /api/v1/validate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "email"}, "msg": "value is not a valid email address"}},
		})
	})
	mux.HandleFunc("GET /api/v1/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type clientFixture struct {
	backend   *backend
	store     tokenstore.Store
	navigator *recordingNavigator
	client    *apiclient.Client
}

func setupClient(t *testing.T, b *backend, opts ...apiclient.Option) *clientFixture {
	t.Helper()

	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	f := &clientFixture{
		backend:   b,
		store:     tokenstore.NewMemoryStore(),
		navigator: &recordingNavigator{},
	}
	opts = append([]apiclient.Option{apiclient.WithNavigator(f.navigator)}, opts...)
	c, err := apiclient.New(srv.URL, f.store, opts...)
	require.NoError(t, err)
	f.client = c
	return f
}

func (f *clientFixture) savePair(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, tokenstore.SavePair(context.Background(), f.store, tokenstore.Pair{AccessToken: access, RefreshToken: refresh}))
}

func TestClient_BearerHeader(t *testing.T) {
	t.Run("stored access token is attached", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-1"})
		f.savePair(t, "access-1", "refresh-1")

		var items []item
		require.NoError(t, f.client.Get(context.Background(), "/items", &items))
		require.Len(t, items, 1)
		require.Equal(t, "first", items[0].Name)
		require.Equal(t, []string{"Bearer access-1"}, f.backend.bearers)
	})

	t.Run("no token means no header", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-1"})

		err := f.client.Get(context.Background(), "/items", nil)
		require.ErrorIs(t, err, apiclient.ErrUnauthorized)
		require.Equal(t, []string{""}, f.backend.bearers)
		require.Zero(t, f.backend.refreshCalls.Load())
		require.Empty(t, f.navigator.calls())
	})
}

func TestClient_RefreshOn401(t *testing.T) {
	t.Run("one refresh and one retry with the new token", func(t *testing.T) {
		var observed []tokenstore.Pair
		f := setupClient(t, &backend{validAccess: "access-2", validRefresh: "refresh-1"},
			apiclient.WithRefreshObserver(func(p tokenstore.Pair) { observed = append(observed, p) }))
		f.savePair(t, "access-1", "refresh-1")

		var items []item
		require.NoError(t, f.client.Get(context.Background(), "/items", &items))
		require.Len(t, items, 1)

		require.EqualValues(t, 1, f.backend.refreshCalls.Load())
		require.EqualValues(t, 2, f.backend.itemCalls.Load())
		require.Equal(t, []string{"Bearer access-1", "Bearer access-refreshed"}, f.backend.bearers)

		pair, err := tokenstore.LoadPair(context.Background(), f.store)
		require.NoError(t, err)
		require.Equal(t, "access-refreshed", pair.AccessToken)
		require.Equal(t, "refresh-rotated", pair.RefreshToken)
		require.Len(t, observed, 1)
		require.Equal(t, pair, observed[0])
	})

	t.Run("refresh response without refresh token keeps the old one", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-2", validRefresh: "refresh-1", omitRefresh: true})
		f.savePair(t, "access-1", "refresh-1")

		require.NoError(t, f.client.Get(context.Background(), "/items", nil))
		pair, err := tokenstore.LoadPair(context.Background(), f.store)
		require.NoError(t, err)
		require.Equal(t, "refresh-1", pair.RefreshToken)
	})

	t.Run("401 on the retry is returned without a second refresh", func(t *testing.T) {
		b := &backend{validAccess: "never-matches", validRefresh: "refresh-1"}
		f := setupClient(t, b)
		f.savePair(t, "access-1", "refresh-1")

		err := f.client.Do(context.Background(), apiclient.NewRequest(http.MethodGet, "/items").Retry(), nil)
		require.ErrorIs(t, err, apiclient.ErrUnauthorized)
		require.Zero(t, b.refreshCalls.Load())
		require.EqualValues(t, 1, b.itemCalls.Load())
	})

	t.Run("missing refresh token returns the original error", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-2"})
		require.NoError(t, f.store.Set(context.Background(), tokenstore.AccessToken, "access-1"))

		err := f.client.Get(context.Background(), "/items", nil)
		require.ErrorIs(t, err, apiclient.ErrUnauthorized)
		require.NotErrorIs(t, err, apiclient.ErrSessionExpired)
		require.Zero(t, f.backend.refreshCalls.Load())
		require.Empty(t, f.navigator.calls())

		access, err := f.store.Get(context.Background(), tokenstore.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "access-1", access)
	})

	t.Run("requests marked without refresh never refresh", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-2", validRefresh: "refresh-1"})
		f.savePair(t, "access-1", "refresh-1")

		err := f.client.Do(context.Background(), apiclient.NewRequest(http.MethodGet, "/items").WithoutRefresh(), nil)
		require.ErrorIs(t, err, apiclient.ErrUnauthorized)
		require.Zero(t, f.backend.refreshCalls.Load())
	})
}

func TestClient_RefreshFailure(t *testing.T) {
	t.Run("clears tokens and redirects once", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-2", refreshStatus: http.StatusUnauthorized})
		f.savePair(t, "access-1", "refresh-1")
		require.NoError(t, f.store.Set(context.Background(), tokenstore.Theme, "dark"))

		ctx := apiclient.WithActivePage(context.Background(), "/dashboard")
		err := f.client.Get(ctx, "/items", nil)
		require.ErrorIs(t, err, apiclient.ErrSessionExpired)
		require.ErrorIs(t, err, apiclient.ErrUnauthorized)

		pair, err := tokenstore.LoadPair(context.Background(), f.store)
		require.NoError(t, err)
		require.True(t, pair.Empty())
		theme, err := f.store.Get(context.Background(), tokenstore.Theme)
		require.NoError(t, err)
		require.Equal(t, "dark", theme)

		require.Equal(t, []string{"/login"}, f.navigator.calls())

		// A second failing request in the same session does not redirect again.
		f.savePair(t, "access-1", "refresh-1")
		err = f.client.Get(ctx, "/items", nil)
		require.ErrorIs(t, err, apiclient.ErrSessionExpired)
		require.Len(t, f.navigator.calls(), 1)

		f.client.ResetRedirect()
		f.savePair(t, "access-1", "refresh-1")
		_ = f.client.Get(ctx, "/items", nil)
		require.Len(t, f.navigator.calls(), 2)
	})

	t.Run("public page does not redirect", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-2", refreshStatus: http.StatusUnauthorized})
		f.savePair(t, "access-1", "refresh-1")

		ctx := apiclient.WithActivePage(context.Background(), "/forgot-password")
		err := f.client.Get(ctx, "/items", nil)
		require.ErrorIs(t, err, apiclient.ErrSessionExpired)
		require.Empty(t, f.navigator.calls())

		pair, err := tokenstore.LoadPair(context.Background(), f.store)
		require.NoError(t, err)
		require.True(t, pair.Empty())
	})

	t.Run("excluded endpoint does not redirect", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-2", refreshStatus: http.StatusBadRequest})
		f.savePair(t, "access-1", "refresh-1")

		ctx := apiclient.WithActivePage(context.Background(), "/dashboard")
		err := f.client.Get(ctx, apiclient.PathCurrentUser, nil)
		require.ErrorIs(t, err, apiclient.ErrSessionExpired)
		require.Empty(t, f.navigator.calls())
	})
}

func TestClient_RefreshCoalescing(t *testing.T) {
	const workers = 8

	f := setupClient(t, &backend{validAccess: "access-2", validRefresh: "refresh-1", refreshDelay: 100 * time.Millisecond},
		apiclient.WithRefreshCoalescing())
	f.savePair(t, "access-1", "refresh-1")
	sharedBefore := testutil.ToFloat64(apiclient.RefreshTotal.WithLabelValues("shared"))
	successBefore := testutil.ToFloat64(apiclient.RefreshTotal.WithLabelValues("success"))

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.client.Get(context.Background(), "/items", nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, f.backend.refreshCalls.Load())

	// Every worker that hit a 401 retried once; all but the one that ran the refresh waited on it.
	refreshers := int(f.backend.itemCalls.Load()) - workers
	require.Positive(t, refreshers)
	require.Equal(t, 1.0, testutil.ToFloat64(apiclient.RefreshTotal.WithLabelValues("success"))-successBefore)
	require.Equal(t, float64(refreshers-1), testutil.ToFloat64(apiclient.RefreshTotal.WithLabelValues("shared"))-sharedBefore)
}

func TestClient_Errors(t *testing.T) {
	t.Run("non-401 errors propagate without refresh", func(t *testing.T) {
		f := setupClient(t, &backend{validAccess: "access-1", validRefresh: "refresh-1"})
		f.savePair(t, "access-1", "refresh-1")

		err := f.client.Get(context.Background(), "/forbidden", nil)
		require.ErrorIs(t, err, apiclient.ErrForbidden)
		require.Zero(t, f.backend.refreshCalls.Load())

		var apiErr *apiclient.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusForbidden, apiErr.Status)
		require.Equal(t, "Not enough permissions", apiclient.UserMessage(err))
	})

	t.Run("validation detail list", func(t *testing.T) {
		f := setupClient(t, &backend{})
		err := f.client.Post(context.Background(), "/validate", map[string]string{"email": "nope"}, nil)

		var apiErr *apiclient.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
		require.Equal(t, "email: value is not a valid email address", apiErr.Detail)
	})

	t.Run("timeout is a network error", func(t *testing.T) {
		f := setupClient(t, &backend{}, apiclient.WithTimeout(20*time.Millisecond))
		err := f.client.Get(context.Background(), "/slow", nil)
		require.ErrorIs(t, err, apiclient.ErrNetwork)
		require.Equal(t, "The server could not be reached. Please try again.", apiclient.UserMessage(err))
	})
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "string detail", status: 400, body: `{"detail":"Incorrect username or password"}`, want: "Incorrect username or password"},
		{name: "validation list", status: 422, body: `{"detail":[{"loc":["body","password"],"msg":"too short"},{"loc":["query","skip"],"msg":"not an int"}]}`, want: "password: too short; skip: not an int"},
		{name: "plain body", status: 502, body: "Bad Gateway", want: "Bad Gateway"},
		{name: "empty body", status: 500, body: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apiclient.ParseError(http.MethodGet, "/x", tt.status, []byte(tt.body))
			require.Equal(t, tt.status, err.Status)
			require.Equal(t, tt.want, err.Detail)
		})
	}

	require.Equal(t, "Internal Server Error", apiclient.ParseError(http.MethodGet, "/x", 500, nil).Message())
}
