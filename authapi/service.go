// Package authapi holds the typed calls the console makes to the auth backend. Nothing here keeps
// state: every function proxies one request and returns the decoded response.
package authapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Backend paths used by the service besides the ones the client owns.
const (
	PathPasswordResetRequest = "/auth/password-reset-request"
	PathPasswordReset        = "/auth/password-reset"
	PathUsers                = "/users"
	PathRoles                = "/roles"
	PathPermissions          = "/permissions"
	PathResources            = "/resources"
	PathCompanies            = "/companies"
	PathIntegrations         = "/integrations"
	PathMySessions           = "/users/me/sessions"
	PathActiveSessions       = "/users/active-sessions"
	PathUserSessions         = "/users/sessions"
	PathActiveStats          = "/users/active-stats"
)

// Service is the backend API as the console uses it.
type Service struct {
	client *apiclient.Client

	Users        *Collection[UserProfile]
	Roles        *Collection[Role]
	Permissions  *Collection[Permission]
	Resources    *Collection[Resource]
	Companies    *Collection[Company]
	Integrations *Collection[Integration]
}

// New creates the service over client.
func New(client *apiclient.Client) (*Service, error) {
	if client == nil {
		return nil, errors.New("[authapi New] client is required")
	}
	return &Service{
		client:       client,
		Users:        NewCollection[UserProfile](client, PathUsers),
		Roles:        NewCollection[Role](client, PathRoles),
		Permissions:  NewCollection[Permission](client, PathPermissions),
		Resources:    NewCollection[Resource](client, PathResources),
		Companies:    NewCollection[Company](client, PathCompanies),
		Integrations: NewCollection[Integration](client, PathIntegrations),
	}, nil
}

// Client returns the underlying API client.
func (s *Service) Client() *apiclient.Client {
	return s.client
}

// Login exchanges credentials for a token pair using the OAuth2 password grant form the backend
// expects on /auth/login. The call bypasses the bearer and refresh interceptors.
func (s *Service) Login(ctx context.Context, creds Credentials) (*TokenPair, error) {
	cfg := oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.client.BaseURL() + apiclient.PathLogin,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.HTTPClient())

	tok, err := cfg.PasswordCredentialsToken(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, errors.Wrap(loginError(err), "[Service.Login]")
	}
	return &TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}, nil
}

// loginError turns an oauth2 token endpoint failure into the same *apiclient.APIError every other
// call returns.
func loginError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return apiclient.ParseError(http.MethodPost, apiclient.PathLogin, re.Response.StatusCode, re.Body)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", apiclient.ErrNetwork, err)
	}
	return err
}

// Logout invalidates the refresh token server-side. Callers treat failures as non-fatal.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	req := apiclient.NewRequest(http.MethodPost, apiclient.PathLogout).WithoutRefresh()
	if refreshToken != "" {
		var err error
		if req, err = req.WithJSON(map[string]string{"refresh_token": refreshToken}); err != nil {
			return errors.Wrap(err, "[Service.Logout]")
		}
	}
	if err := s.client.Do(ctx, req, nil); err != nil {
		return errors.Wrap(err, "[Service.Logout]")
	}
	return nil
}

// Refresh rotates the token pair. Like the interceptor it talks to the endpoint directly.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tr, err := apiclient.RefreshTokens(ctx, s.client.HTTPClient(), s.client.BaseURL(), refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh]")
	}
	pair := &TokenPair{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken, TokenType: tr.TokenType}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

// CurrentUser fetches the signed-in user.
func (s *Service) CurrentUser(ctx context.Context) (*UserProfile, error) {
	var u UserProfile
	if err := s.client.Get(ctx, apiclient.PathCurrentUser, &u); err != nil {
		return nil, errors.Wrap(err, "[Service.CurrentUser]")
	}
	return &u, nil
}

// UpdateCurrentUser applies patch to the signed-in user and returns the new snapshot.
func (s *Service) UpdateCurrentUser(ctx context.Context, patch UserUpdate) (*UserProfile, error) {
	var u UserProfile
	if err := s.client.Put(ctx, apiclient.PathCurrentUser, patch, &u); err != nil {
		return nil, errors.Wrap(err, "[Service.UpdateCurrentUser]")
	}
	return &u, nil
}

// RequestPasswordReset asks for a reset mail. The backend answers the same whether or not the
// address exists.
func (s *Service) RequestPasswordReset(ctx context.Context, in PasswordResetRequest) error {
	req, err := apiclient.NewRequest(http.MethodPost, PathPasswordResetRequest).WithoutRefresh().WithJSON(in)
	if err != nil {
		return errors.Wrap(err, "[Service.RequestPasswordReset]")
	}
	if err := s.client.Do(ctx, req, nil); err != nil {
		return errors.Wrap(err, "[Service.RequestPasswordReset]")
	}
	return nil
}

// ResetPassword sets a new password using the mailed token.
func (s *Service) ResetPassword(ctx context.Context, in PasswordReset) error {
	req, err := apiclient.NewRequest(http.MethodPost, PathPasswordReset).WithoutRefresh().WithJSON(in)
	if err != nil {
		return errors.Wrap(err, "[Service.ResetPassword]")
	}
	if err := s.client.Do(ctx, req, nil); err != nil {
		return errors.Wrap(err, "[Service.ResetPassword]")
	}
	return nil
}

// MySessions lists the signed-in user's own sessions.
func (s *Service) MySessions(ctx context.Context) ([]UserSession, error) {
	var sessions []UserSession
	if err := s.client.Get(ctx, PathMySessions, &sessions); err != nil {
		return nil, errors.Wrap(err, "[Service.MySessions]")
	}
	return sessions, nil
}

// ActiveSessions lists every active session (admin).
func (s *Service) ActiveSessions(ctx context.Context) ([]UserSession, error) {
	var sessions []UserSession
	if err := s.client.Get(ctx, PathActiveSessions, &sessions); err != nil {
		return nil, errors.Wrap(err, "[Service.ActiveSessions]")
	}
	return sessions, nil
}

// RevokeSession ends one session.
func (s *Service) RevokeSession(ctx context.Context, id int64) error {
	if err := s.client.Delete(ctx, PathUserSessions+"/"+strconv.FormatInt(id, 10)); err != nil {
		return errors.Wrap(err, "[Service.RevokeSession]")
	}
	return nil
}

// ActiveStats returns the dashboard counters.
func (s *Service) ActiveStats(ctx context.Context) (*ActiveStats, error) {
	var stats ActiveStats
	if err := s.client.Get(ctx, PathActiveStats, &stats); err != nil {
		return nil, errors.Wrap(err, "[Service.ActiveStats]")
	}
	return &stats, nil
}

// RegenerateIntegrationSecret issues a new client secret. The returned integration is the only
// place the secret is ever shown.
func (s *Service) RegenerateIntegrationSecret(ctx context.Context, id int64) (*Integration, error) {
	var in Integration
	path := PathIntegrations + "/" + strconv.FormatInt(id, 10) + "/regenerate-secret"
	if err := s.client.Post(ctx, path, nil, &in); err != nil {
		return nil, errors.Wrap(err, "[Service.RegenerateIntegrationSecret]")
	}
	return &in, nil
}

// ListOptions pages through a collection.
type ListOptions struct {
	Skip  int
	Limit int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Skip > 0 {
		q.Set("skip", strconv.Itoa(o.Skip))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}
