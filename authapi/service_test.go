package authapi_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/internal/backendfake"
	"github.com/jrsteele09/go-auth-console/internal/utils"
	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/stretchr/testify/require"
)

const (
	adminUsername = "admin"
	adminPassword = "admin-pass1"
	userUsername  = "jane"
	userPassword  = "jane-pass1"
)

type serviceFixture struct {
	backend *backendfake.Backend
	store   tokenstore.Store
	service *authapi.Service
	admin   authapi.UserProfile
	user    authapi.UserProfile
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()

	b := backendfake.New()
	url := b.Start()
	t.Cleanup(b.Close)

	admin := b.AddUser(authapi.UserProfile{
		Username: adminUsername, Email: "admin@example.com", IsActive: true, IsSuperuser: true,
		CompanyID: backendfake.RootCompanyID,
	}, adminPassword)
	user := b.AddUser(authapi.UserProfile{
		Username: userUsername, Email: "jane@example.com", FullName: "Jane Doe", IsActive: true, CompanyID: 2,
	}, userPassword)

	store := tokenstore.NewMemoryStore()
	client, err := apiclient.New(url, store)
	require.NoError(t, err)
	svc, err := authapi.New(client)
	require.NoError(t, err)

	return &serviceFixture{backend: b, store: store, service: svc, admin: admin, user: user}
}

func (f *serviceFixture) signIn(t *testing.T, username, password string) authapi.TokenPair {
	t.Helper()
	pair, err := f.service.Login(context.Background(), authapi.Credentials{Username: username, Password: password})
	require.NoError(t, err)
	require.NoError(t, tokenstore.SavePair(context.Background(), f.store,
		tokenstore.Pair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}))
	return *pair
}

func TestService_Login(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		pair, err := f.service.Login(ctx, authapi.Credentials{Username: userUsername, Password: userPassword})
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
		require.NotEmpty(t, pair.RefreshToken)
		require.Equal(t, "bearer", pair.TokenType)
	})

	t.Run("wrong password is a 401 api error", func(t *testing.T) {
		_, err := f.service.Login(ctx, authapi.Credentials{Username: userUsername, Password: "nope"})
		require.ErrorIs(t, err, apiclient.ErrUnauthorized)

		var apiErr *apiclient.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "Incorrect username or password", apiErr.Detail)
	})

	t.Run("login does not touch the store", func(t *testing.T) {
		pair, err := tokenstore.LoadPair(ctx, f.store)
		require.NoError(t, err)
		require.True(t, pair.Empty())
	})
}

func TestService_CurrentUser(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.signIn(t, userUsername, userPassword)

	me, err := f.service.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, me.ID)
	require.Equal(t, "Jane Doe", me.DisplayName())

	updated, err := f.service.UpdateCurrentUser(ctx, authapi.UserUpdate{FullName: utils.Ptr("Jane Q. Doe")})
	require.NoError(t, err)
	require.Equal(t, "Jane Q. Doe", updated.FullName)
	require.Equal(t, "jane@example.com", updated.Email)
}

func TestService_RefreshAndLogout(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	first := f.signIn(t, userUsername, userPassword)

	rotated, err := f.service.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, rotated.RefreshToken)

	_, err = f.service.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)

	require.Equal(t, 1, f.backend.SessionCount())
	require.NoError(t, f.service.Logout(ctx, rotated.RefreshToken))
	require.Zero(t, f.backend.SessionCount())
}

func TestService_PasswordReset(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	require.NoError(t, f.service.RequestPasswordReset(ctx, authapi.PasswordResetRequest{Email: "jane@example.com"}))
	require.Equal(t, []string{"jane@example.com"}, f.backend.ResetRequests())

	f.backend.AddResetToken("reset-1", f.user.ID)
	require.NoError(t, f.service.ResetPassword(ctx, authapi.PasswordReset{Token: "reset-1", NewPassword: "new-pass-2"}))
	require.True(t, f.backend.CheckPassword(userUsername, "new-pass-2"))

	err := f.service.ResetPassword(ctx, authapi.PasswordReset{Token: "reset-1", NewPassword: "again-3"})
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 400, apiErr.Status)
}

func TestService_Collections(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.signIn(t, adminUsername, adminPassword)

	t.Run("roles crud", func(t *testing.T) {
		role, err := f.service.Roles.Create(ctx, map[string]any{"name": "auditor", "description": "read only"})
		require.NoError(t, err)
		require.NotZero(t, role.ID)

		got, err := f.service.Roles.Get(ctx, role.ID)
		require.NoError(t, err)
		require.Equal(t, "auditor", got.Name)

		updated, err := f.service.Roles.Update(ctx, role.ID, map[string]any{"description": "reads everything"})
		require.NoError(t, err)
		require.Equal(t, "reads everything", updated.Description)

		roles, err := f.service.Roles.List(ctx, authapi.ListOptions{})
		require.NoError(t, err)
		require.Len(t, roles, 1)

		require.NoError(t, f.service.Roles.Delete(ctx, role.ID))
		_, err = f.service.Roles.Get(ctx, role.ID)
		require.ErrorIs(t, err, apiclient.ErrNotFound)
	})

	t.Run("users paging", func(t *testing.T) {
		users, err := f.service.Users.List(ctx, authapi.ListOptions{Skip: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, users, 1)
		require.Equal(t, userUsername, users[0].Username)
	})

	t.Run("integration secret only on create and regenerate", func(t *testing.T) {
		created, err := f.service.Integrations.Create(ctx, map[string]any{"name": "billing"})
		require.NoError(t, err)
		require.NotEmpty(t, created.ClientSecret)

		listed, err := f.service.Integrations.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Empty(t, listed.ClientSecret)
		require.Equal(t, created.ClientID, listed.ClientID)

		regenerated, err := f.service.RegenerateIntegrationSecret(ctx, created.ID)
		require.NoError(t, err)
		require.NotEmpty(t, regenerated.ClientSecret)
		require.NotEqual(t, created.ClientSecret, regenerated.ClientSecret)
	})
}

func TestService_Sessions(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	// Jane signs in twice, the admin once.
	_, err := f.backend.IssueTokens(f.user.ID)
	require.NoError(t, err)
	f.signIn(t, userUsername, userPassword)

	mine, err := f.service.MySessions(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	_, err = f.service.ActiveSessions(ctx)
	require.ErrorIs(t, err, apiclient.ErrForbidden)

	require.NoError(t, f.service.RevokeSession(ctx, mine[0].ID))
	mine, err = f.service.MySessions(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	f.signIn(t, adminUsername, adminPassword)
	stats, err := f.service.ActiveStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.ActiveSessions)
	require.Equal(t, 2, stats.ActiveUsers)
	require.Equal(t, 2, stats.TotalUsers)

	all, err := f.service.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestService_CompaniesNeedRootTenant(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	f.backend.Seed(authapi.PathCompanies, map[string]any{"name": "Root Co", "is_active": true})

	f.backend.AddUser(authapi.UserProfile{Username: "tenant-admin", IsActive: true, IsSuperuser: true, CompanyID: 7}, "tenant-pass1")
	f.signIn(t, "tenant-admin", "tenant-pass1")
	_, err := f.service.Companies.List(ctx, authapi.ListOptions{})
	require.ErrorIs(t, err, apiclient.ErrForbidden)

	f.signIn(t, adminUsername, adminPassword)
	companies, err := f.service.Companies.List(ctx, authapi.ListOptions{})
	require.NoError(t, err)
	require.Len(t, companies, 1)
	require.Equal(t, "Root Co", companies[0].Name)
}
