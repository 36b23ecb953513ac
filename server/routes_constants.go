package server

import "github.com/jrsteele09/go-auth-console/guard"

// Route path constants
// Page routes come from the guard package so the route table and the mux cannot drift apart.
const (
	RouteIndex = "/"

	// Auth pages
	RouteLogin          = guard.RouteLogin
	RouteLogout         = "/logout"
	RouteForgotPassword = guard.RouteForgotPassword
	RouteResetPassword  = guard.RouteResetPassword

	// User pages
	RouteDashboard  = guard.RouteDashboard
	RouteProfile    = guard.RouteProfile
	RouteMySessions = guard.RouteMySessions

	// Admin pages
	RouteAdminUsers        = guard.RouteUsers
	RouteAdminRoles        = guard.RouteRoles
	RouteAdminPermissions  = guard.RoutePermissions
	RouteAdminSessions     = guard.RouteSessions
	RouteAdminResources    = guard.RouteResources
	RouteAdminCompanies    = guard.RouteCompanies
	RouteAdminIntegrations = guard.RouteIntegrations

	// Row actions, appended to a page route
	ActionDelete     = "/{id}/delete"
	ActionRevoke     = "/{id}/revoke"
	ActionRegenerate = "/{id}/regenerate-secret"

	// Preferences
	RouteThemePreference    = "/preferences/theme"
	RoutePageSizePreference = "/preferences/page-size"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/{file...}"
)
