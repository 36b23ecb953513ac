package guard_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/guard"
	"github.com/jrsteele09/go-auth-console/session"
	"github.com/stretchr/testify/require"
)

const rootCompanyID = 1

func authenticated(user authapi.UserProfile) session.State {
	return session.State{User: &user, AccessToken: "a", RefreshToken: "r", IsAuthenticated: true}
}

func TestEvaluate(t *testing.T) {
	anonymous := session.State{}
	loading := session.InitialState()
	member := authenticated(authapi.UserProfile{ID: 3, CompanyID: 2})
	tenantAdmin := authenticated(authapi.UserProfile{ID: 4, IsSuperuser: true, CompanyID: 2})
	rootAdmin := authenticated(authapi.UserProfile{ID: 1, IsSuperuser: true, CompanyID: rootCompanyID})

	tests := []struct {
		name  string
		state session.State
		path  string
		want  guard.Decision
	}{
		{"loading shows placeholder", loading, guard.RouteDashboard, guard.Decision{Outcome: guard.Placeholder}},
		{"public page while loading", loading, guard.RouteLogin, guard.Decision{Outcome: guard.Allow}},
		{"anonymous to admin page goes to login", anonymous, guard.RouteUsers,
			guard.Decision{Outcome: guard.Redirect, Location: "/login?next=%2Fadmin%2Fusers"}},
		{"anonymous to dashboard", anonymous, guard.RouteDashboard, guard.Decision{Outcome: guard.Redirect, Location: "/login"}},
		{"member sees dashboard", member, guard.RouteDashboard, guard.Decision{Outcome: guard.Allow}},
		{"member denied admin page", member, guard.RouteRoles, guard.Decision{Outcome: guard.Redirect, Location: guard.RouteDashboard}},
		{"tenant admin sees users", tenantAdmin, guard.RouteUsers, guard.Decision{Outcome: guard.Allow}},
		{"tenant admin denied companies", tenantAdmin, guard.RouteCompanies, guard.Decision{Outcome: guard.Redirect, Location: guard.RouteDashboard}},
		{"root admin sees companies", rootAdmin, guard.RouteCompanies, guard.Decision{Outcome: guard.Allow}},
		{"nested admin path", member, guard.RouteIntegrations + "/7", guard.Decision{Outcome: guard.Redirect, Location: guard.RouteDashboard}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := guard.Evaluate(tt.state, guard.RequirementFor(tt.path), tt.path, rootCompanyID)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_AdminFlagNeedsAuthentication(t *testing.T) {
	// A stale user snapshot on an unauthenticated state must not pass the admin check.
	state := session.State{User: &authapi.UserProfile{IsSuperuser: true, CompanyID: rootCompanyID}}
	got := guard.Evaluate(state, guard.RootAdmin, guard.RouteCompanies, rootCompanyID)
	require.Equal(t, guard.Redirect, got.Outcome)
	require.Contains(t, got.Location, guard.RouteLogin)
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                       guard.RouteDashboard,
		"/admin/users":           "/admin/users",
		"/admin/users?skip=20":   "/admin/users?skip=20",
		"https://evil.example":   guard.RouteDashboard,
		"//evil.example/path":    guard.RouteDashboard,
		`/\evil.example`:         guard.RouteDashboard,
		"/login":                 guard.RouteDashboard,
		"/reset-password?token=": guard.RouteDashboard,
		"profile":                guard.RouteDashboard,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, guard.SafeNext(in))
		})
	}
}

func TestRequirementFor(t *testing.T) {
	require.Equal(t, guard.Public, guard.RequirementFor(guard.RouteForgotPassword))
	require.Equal(t, guard.RootAdmin, guard.RequirementFor(guard.RouteCompanies+"/3"))
	require.Equal(t, guard.Authenticated, guard.RequirementFor("/somewhere"))
}

func TestPageFor(t *testing.T) {
	require.Equal(t, guard.RouteUsers, guard.PageFor(guard.RouteUsers+"/12/delete"))
	require.Equal(t, guard.RouteMySessions, guard.PageFor(guard.RouteMySessions))
	require.Equal(t, "/preferences/theme", guard.PageFor("/preferences/theme"))
}
