package apiclient

import (
	"context"
	"strings"
)

// Navigator performs the redirect to the login route after a session could not be recovered.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) { f(ctx, path) }

// RoutePredicate matches console routes (not API paths).
type RoutePredicate func(route string) bool

// ExactRoutes matches any of the given routes exactly.
func ExactRoutes(routes ...string) RoutePredicate {
	set := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		set[r] = struct{}{}
	}
	return func(route string) bool {
		_, ok := set[route]
		return ok
	}
}

// RoutePrefix matches a route and everything below it.
func RoutePrefix(prefix string) RoutePredicate {
	prefix = strings.TrimSuffix(prefix, "/")
	return func(route string) bool {
		return route == prefix || strings.HasPrefix(route, prefix+"/")
	}
}

// RedirectPolicy decides whether an unrecoverable 401 sends the user to the login route.
type RedirectPolicy struct {
	// LoginRoute is where the user is sent.
	LoginRoute string
	// PublicRoutes are pages that work without a session; failures there never redirect.
	PublicRoutes []RoutePredicate
	// ExcludedEndpoints are API paths whose failures are handled by their caller, not by a redirect.
	ExcludedEndpoints []string
}

// DefaultRedirectPolicy mirrors the console's public pages and the endpoints used during bootstrap.
func DefaultRedirectPolicy() RedirectPolicy {
	return RedirectPolicy{
		LoginRoute:        "/login",
		PublicRoutes:      []RoutePredicate{ExactRoutes("/login", "/forgot-password", "/reset-password")},
		ExcludedEndpoints: []string{PathCurrentUser, PathRefresh},
	}
}

func (p RedirectPolicy) shouldRedirect(ctx context.Context, req Request) bool {
	if p.LoginRoute == "" {
		return false
	}
	for _, ep := range p.ExcludedEndpoints {
		if req.Path() == ep {
			return false
		}
	}
	page, ok := ActivePage(ctx)
	if !ok {
		return true
	}
	for _, public := range p.PublicRoutes {
		if public(page) {
			return false
		}
	}
	return true
}

type activePageKey struct{}

// WithActivePage records the console route the caller is rendering.
func WithActivePage(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, activePageKey{}, route)
}

// ActivePage returns the route recorded by WithActivePage.
func ActivePage(ctx context.Context) (string, bool) {
	route, ok := ctx.Value(activePageKey{}).(string)
	return route, ok
}
