package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// public wraps pages that work without a session; guarded ones pass the route guard first.
	public := func(h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
		return ChainMiddleware(h, s.HTMLMiddleWare(append(mw, s.ConsoleMiddleware)...)...)
	}
	guarded := func(h http.HandlerFunc) http.HandlerFunc {
		return ChainMiddleware(h, s.HTMLMiddleWare(s.ConsoleMiddleware, s.GuardMiddleware)...)
	}

	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, public(s.LoginPageUIHandler()))
	s.RegisterRouteHandler("POST "+RouteLogin, public(s.LoginSubmissionHandler(), s.LoginThrottleMiddleware))
	s.RegisterRouteHandler("POST "+RouteLogout, public(s.LogoutHandler()))

	s.RegisterRouteHandler("GET "+RouteForgotPassword, public(s.ForgotPasswordGetHandler()))
	s.RegisterRouteHandler("POST "+RouteForgotPassword, public(s.ForgotPasswordPostHandler(), s.LoginThrottleMiddleware))
	s.RegisterRouteHandler("GET "+RouteResetPassword, public(s.ResetPasswordGetHandler()))
	s.RegisterRouteHandler("POST "+RouteResetPassword, public(s.ResetPasswordPostHandler(), s.LoginThrottleMiddleware))

	// User pages
	s.RegisterRouteHandler("GET "+RouteDashboard, guarded(s.DashboardHandler()))
	s.RegisterRouteHandler("GET "+RouteProfile, guarded(s.ProfileGetHandler()))
	s.RegisterRouteHandler("POST "+RouteProfile, guarded(s.ProfilePostHandler()))
	s.RegisterRouteHandler("GET "+RouteMySessions, guarded(s.MySessionsHandler()))
	s.RegisterRouteHandler("POST "+RouteMySessions+ActionRevoke, guarded(s.RevokeSessionHandler(RouteMySessions)))

	// Admin pages
	users := usersListing()
	s.RegisterRouteHandler("GET "+users.route, guarded(adminListHandler(s, users)))
	s.RegisterRouteHandler("POST "+users.route+ActionDelete, guarded(adminDeleteHandler(s, users)))

	roles := rolesListing()
	s.RegisterRouteHandler("GET "+roles.route, guarded(adminListHandler(s, roles)))
	s.RegisterRouteHandler("POST "+roles.route+ActionDelete, guarded(adminDeleteHandler(s, roles)))

	permissions := permissionsListing()
	s.RegisterRouteHandler("GET "+permissions.route, guarded(adminListHandler(s, permissions)))
	s.RegisterRouteHandler("POST "+permissions.route+ActionDelete, guarded(adminDeleteHandler(s, permissions)))

	resources := resourcesListing()
	s.RegisterRouteHandler("GET "+resources.route, guarded(adminListHandler(s, resources)))
	s.RegisterRouteHandler("POST "+resources.route+ActionDelete, guarded(adminDeleteHandler(s, resources)))

	companies := companiesListing()
	s.RegisterRouteHandler("GET "+companies.route, guarded(adminListHandler(s, companies)))
	s.RegisterRouteHandler("POST "+companies.route+ActionDelete, guarded(adminDeleteHandler(s, companies)))

	integrations := integrationsListing()
	s.RegisterRouteHandler("GET "+integrations.route, guarded(adminListHandler(s, integrations)))
	s.RegisterRouteHandler("POST "+integrations.route+ActionDelete, guarded(adminDeleteHandler(s, integrations)))
	s.RegisterRouteHandler("POST "+integrations.route+ActionRegenerate, guarded(s.RegenerateSecretHandler()))

	s.RegisterRouteHandler("GET "+RouteAdminSessions, guarded(s.AdminSessionsHandler()))
	s.RegisterRouteHandler("POST "+RouteAdminSessions+ActionRevoke, guarded(s.RevokeSessionHandler(RouteAdminSessions)))

	// Preferences
	s.RegisterRouteHandler("POST "+RouteThemePreference, public(s.ThemePreferenceHandler()))
	s.RegisterRouteHandler("POST "+RoutePageSizePreference, guarded(s.PageSizePreferenceHandler()))

	// Operations
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.OpsMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMetrics, ChainMiddleware(promhttp.Handler().ServeHTTP, s.OpsMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteStatic, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
}

// HealthHandler reports liveness and how many consoles are in memory.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"consoles": s.consoles.Len(),
		})
	}
}
