package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/guard"
	cerrors "github.com/jrsteele09/go-auth-console/internal/errors"
	"github.com/jrsteele09/go-auth-console/session"
	"github.com/jrsteele09/go-auth-console/tokenstore"
)

// app is one invocation of the command line console. The session is restored from the token
// file before any command that needs it runs.
type app struct {
	cfg     *Config
	printer *Printer
	logger  zerolog.Logger

	store   tokenstore.Store
	client  *apiclient.Client
	api     *authapi.Service
	session *session.Controller
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).Level(level).With().Timestamp().Logger()
}

func (a *app) open() error {
	if err := os.MkdirAll(filepath.Dir(a.cfg.TokenFile), 0o700); err != nil {
		return fmt.Errorf("[cli open] %w", err)
	}
	a.store = tokenstore.NewFileStore(a.cfg.TokenFile)
	if a.cfg.StorageKey != "" {
		key, err := tokenstore.ParseKey(a.cfg.StorageKey)
		if err != nil {
			return fmt.Errorf("[cli open] storage_key: %w", err)
		}
		a.store = tokenstore.NewSealedStore(a.store, key)
	}

	// The CLI has no pages, so every unrecoverable 401 ends the session.
	policy := apiclient.RedirectPolicy{
		LoginRoute:        guard.RouteLogin,
		ExcludedEndpoints: []string{apiclient.PathCurrentUser, apiclient.PathRefresh},
	}
	client, err := apiclient.New(a.cfg.API.URL, a.store,
		apiclient.WithPrefix(a.cfg.API.Prefix),
		apiclient.WithTimeout(a.cfg.API.Timeout),
		apiclient.WithRedirectPolicy(policy),
		apiclient.WithNavigator(apiclient.NavigatorFunc(func(ctx context.Context, _ string) {
			a.session.Expire(ctx, apiclient.UserMessage(apiclient.ErrSessionExpired))
		})),
		apiclient.WithRefreshObserver(func(pair tokenstore.Pair) { a.session.TokensRefreshed(pair) }),
		apiclient.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.client = client

	if a.api, err = authapi.New(client); err != nil {
		return err
	}
	a.session = session.NewController(a.api, a.store, session.WithLogger(a.logger))
	return nil
}

// restore settles the session from the token file.
func (a *app) restore(ctx context.Context) session.State {
	a.session.Bootstrap(ctx)
	return a.session.State()
}

// authorize applies the route guard of the console page a command mirrors.
func (a *app) authorize(ctx context.Context, route string) (session.State, error) {
	state := a.restore(ctx)
	decision := guard.Evaluate(state, guard.RequirementFor(route), route, a.cfg.RootCompanyID)
	if decision.Outcome == guard.Allow {
		return state, nil
	}
	if !state.IsAuthenticated {
		return state, fmt.Errorf("%w: run `%s login` first", cerrors.ErrNotAuthenticated, appName)
	}
	return state, fmt.Errorf("%w: %s needs an administrator of the right company", cerrors.ErrForbidden, route)
}
