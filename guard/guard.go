// Package guard decides whether a session may see a console route.
package guard

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-console/session"
)

// Console routes.
const (
	RouteLogin          = "/login"
	RouteForgotPassword = "/forgot-password"
	RouteResetPassword  = "/reset-password"
	RouteDashboard      = "/dashboard"
	RouteProfile        = "/profile"
	RouteMySessions     = "/my-sessions"
	RouteUsers          = "/admin/users"
	RouteRoles          = "/admin/roles"
	RoutePermissions    = "/admin/permissions"
	RouteSessions       = "/admin/sessions"
	RouteResources      = "/admin/resources"
	RouteCompanies      = "/admin/companies"
	RouteIntegrations   = "/admin/integrations"

	// NextParam carries the originally requested location through the login page.
	NextParam = "next"
)

// Requirement is what a route asks of the session.
type Requirement struct {
	Public bool
	Admin  bool
	Root   bool
}

var (
	Public        = Requirement{Public: true}
	Authenticated = Requirement{}
	Admin         = Requirement{Admin: true}
	RootAdmin     = Requirement{Admin: true, Root: true}
)

// Routes maps every console route to its requirement.
var Routes = map[string]Requirement{
	RouteLogin:          Public,
	RouteForgotPassword: Public,
	RouteResetPassword:  Public,
	RouteDashboard:      Authenticated,
	RouteProfile:        Authenticated,
	RouteMySessions:     Authenticated,
	RouteUsers:          Admin,
	RouteRoles:          Admin,
	RoutePermissions:    Admin,
	RouteSessions:       Admin,
	RouteResources:      Admin,
	RouteIntegrations:   Admin,
	RouteCompanies:      RootAdmin,
}

// PublicRoutes lists the routes that work without a session.
func PublicRoutes() []string {
	return []string{RouteLogin, RouteForgotPassword, RouteResetPassword}
}

// RequirementFor returns the requirement of path, matching the longest known route prefix.
// Unknown paths need authentication.
func RequirementFor(path string) Requirement {
	if req, ok := Routes[path]; ok {
		return req
	}
	best, found := "", false
	for route := range Routes {
		if strings.HasPrefix(path, route+"/") && len(route) > len(best) {
			best, found = route, true
		}
	}
	if found {
		return Routes[best]
	}
	return Authenticated
}

// PageFor maps a path to the console page it belongs to, e.g. a row action to its list page.
// Paths outside the route table are returned unchanged.
func PageFor(path string) string {
	if _, ok := Routes[path]; ok {
		return path
	}
	best := ""
	for route := range Routes {
		if strings.HasPrefix(path, route+"/") && len(route) > len(best) {
			best = route
		}
	}
	if best == "" {
		return path
	}
	return best
}

type Outcome int

const (
	Allow Outcome = iota
	Placeholder
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is the result of Evaluate. Location is set for Redirect.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Evaluate decides what to render for requested given the session state. It never fails:
// while the session is loading the answer is a placeholder, an anonymous user goes to the login
// page with the requested location preserved, and a user lacking the admin or root tenant
// predicate goes to the dashboard.
func Evaluate(state session.State, req Requirement, requested string, rootCompanyID int64) Decision {
	if req.Public {
		return Decision{Outcome: Allow}
	}
	if state.IsLoading {
		return Decision{Outcome: Placeholder}
	}
	if !state.IsAuthenticated {
		return Decision{Outcome: Redirect, Location: LoginLocation(requested)}
	}
	if req.Admin && !state.IsAdmin() {
		return Decision{Outcome: Redirect, Location: RouteDashboard}
	}
	if req.Root && !state.IsRootTenant(rootCompanyID) {
		return Decision{Outcome: Redirect, Location: RouteDashboard}
	}
	return Decision{Outcome: Allow}
}

// LoginLocation is the login URL that returns to requested after signing in.
func LoginLocation(requested string) string {
	next := SafeNext(requested)
	if next == RouteDashboard {
		return RouteLogin
	}
	return RouteLogin + "?" + url.Values{NextParam: {next}}.Encode()
}

// SafeNext keeps post-login redirects on this site. Anything that is not a local absolute path,
// or that points back at a public page, becomes the dashboard.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return RouteDashboard
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return RouteDashboard
	}
	if RequirementFor(u.Path).Public || u.Path == "/" {
		return RouteDashboard
	}
	return next
}
