package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/guard"
	"github.com/jrsteele09/go-auth-console/internal/validate"
	"github.com/rs/zerolog"
)

// LoginPageUIHandler displays the login page (GET /login)
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		next := guard.SafeNext(r.URL.Query().Get(guard.NextParam))

		state := c.Session.State()
		if state.IsAuthenticated {
			redirectSuccess(w, r, next)
			return
		}

		data := s.newPageData(r, "Sign in")
		data.Next = next
		data.Values = map[string]string{"username": r.URL.Query().Get("username")}
		if state.Error != "" {
			data.alert("error", state.Error)
			c.Session.ClearError()
		}
		s.render(w, r, http.StatusOK, pageLogin, data)
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		creds := authapi.Credentials{
			Username: strings.TrimSpace(r.FormValue("username")),
			Password: r.FormValue("password"),
		}
		next := guard.SafeNext(r.FormValue(guard.NextParam))

		data := s.newPageData(r, "Sign in")
		data.Next = next
		data.Values = map[string]string{"username": creds.Username}

		if err := s.validate.Struct(creds); err != nil {
			data.Errors = fieldErrors(err)
			s.render(w, r, http.StatusUnprocessableEntity, pageLogin, data)
			return
		}

		// A login racing a slow bootstrap must not be overwritten when bootstrap settles.
		if _, err := c.Session.Await(r.Context()); err != nil {
			return
		}

		if err := c.Session.Login(r.Context(), creds); err != nil {
			zerolog.Ctx(r.Context()).Info().Err(err).Str("username", creds.Username).Msg("Sign in failed")
			data.alert("error", c.Session.State().Error)
			c.Session.ClearError()
			s.render(w, r, http.StatusUnauthorized, pageLogin, data)
			return
		}

		c.TakeRedirect()
		c.Client.ResetRedirect()
		redirectSuccess(w, r, next)
	}
}

// LogoutHandler ends the session and returns to the login page.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		c.Session.Logout(r.Context())
		redirectWithNotice(w, r, RouteLogin, "You have been signed out.")
	}
}

// fieldErrors maps a validation failure to per-field messages. Anything else becomes a form level
// message under the empty key.
func fieldErrors(err error) map[string]string {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return map[string]string{"": err.Error()}
}
