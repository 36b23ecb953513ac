package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/guard"
	"github.com/jrsteele09/go-auth-console/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type passwordResetForm struct {
	Token           string `form:"token" validate:"required"`
	NewPassword     string `form:"new_password" validate:"required,password"`
	ConfirmPassword string `form:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// ForgotPasswordGetHandler renders the forgot-password page
func (s *Server) ForgotPasswordGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "Forgot password")
		s.render(w, r, http.StatusOK, pageForgotPassword, data)
	}
}

// ForgotPasswordPostHandler asks the backend to mail a reset link. The page reads the same
// whether or not the address is known.
func (s *Server) ForgotPasswordPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		in := authapi.PasswordResetRequest{Email: strings.TrimSpace(r.FormValue("email"))}

		data := s.newPageData(r, "Forgot password")
		data.Values = map[string]string{"email": in.Email}
		if err := s.validate.Struct(in); err != nil {
			data.Errors = fieldErrors(err)
			s.render(w, r, http.StatusUnprocessableEntity, pageForgotPassword, data)
			return
		}

		if err := c.API.RequestPasswordReset(r.Context(), in); err != nil {
			var apiErr *apiclient.APIError
			if !errors.As(err, &apiErr) || apiErr.Status >= http.StatusInternalServerError {
				data.alert("error", apiclient.UserMessage(err))
				s.render(w, r, http.StatusOK, pageForgotPassword, data)
				return
			}
			zerolog.Ctx(r.Context()).Info().Err(err).Msg("Password reset request rejected")
		}

		data.Content = true
		s.render(w, r, http.StatusOK, pageForgotPassword, data)
	}
}

// ResetPasswordGetHandler renders the reset form for the token in the mailed link.
func (s *Server) ResetPasswordGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		data := s.newPageData(r, "Reset password")
		data.Values = map[string]string{"token": token}
		if token == "" {
			data.alert("error", "This reset link is invalid. Request a new one.")
		}
		s.render(w, r, http.StatusOK, pageResetPassword, data)
	}
}

func (s *Server) ResetPasswordPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		form := passwordResetForm{
			Token:           r.FormValue("token"),
			NewPassword:     r.FormValue("new_password"),
			ConfirmPassword: r.FormValue("confirm_password"),
		}

		data := s.newPageData(r, "Reset password")
		data.Values = map[string]string{"token": form.Token}
		if err := s.validate.Struct(form); err != nil {
			data.Errors = fieldErrors(err)
			s.render(w, r, http.StatusUnprocessableEntity, pageResetPassword, data)
			return
		}

		err := c.API.ResetPassword(r.Context(), authapi.PasswordReset{Token: form.Token, NewPassword: form.NewPassword})
		if err != nil {
			data.alert("error", apiclient.UserMessage(err))
			s.render(w, r, http.StatusOK, pageResetPassword, data)
			return
		}
		redirectWithNotice(w, r, RouteLogin, "Your password has been reset. Please sign in.")
	}
}

type dashboardView struct {
	Sessions []authapi.UserSession
	Stats    *authapi.ActiveStats
}

// DashboardHandler loads the user's sessions and, for administrators, the activity summary in
// parallel.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		data := s.newPageData(r, "Dashboard")
		view := &dashboardView{}

		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			sessions, err := c.API.MySessions(ctx)
			view.Sessions = sessions
			return err
		})
		if data.IsAdmin {
			g.Go(func() error {
				stats, err := c.API.ActiveStats(ctx)
				view.Stats = stats
				return err
			})
		}
		if err := g.Wait(); err != nil {
			if s.sessionLost(w, r, c, err) {
				return
			}
			data.alert("error", apiclient.UserMessage(err))
		}

		data.Content = view
		s.render(w, r, http.StatusOK, pageDashboard, data)
	}
}

type profileForm struct {
	Email           string `form:"email" validate:"required,email"`
	FullName        string `form:"full_name" validate:"max=255"`
	Password        string `form:"password" validate:"omitempty,password"`
	ConfirmPassword string `form:"confirm_password" validate:"eqfield=Password"`
}

func (s *Server) ProfileGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "Profile")
		if data.User == nil {
			redirectSuccess(w, r, guard.LoginLocation(RouteProfile))
			return
		}
		data.Values = map[string]string{"email": data.User.Email, "full_name": data.User.FullName}
		s.render(w, r, http.StatusOK, pageProfile, data)
	}
}

// ProfilePostHandler sends only the fields that changed.
func (s *Server) ProfilePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		form := profileForm{
			Email:           strings.TrimSpace(r.FormValue("email")),
			FullName:        strings.TrimSpace(r.FormValue("full_name")),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("confirm_password"),
		}

		data := s.newPageData(r, "Profile")
		if data.User == nil {
			redirectSuccess(w, r, guard.LoginLocation(RouteProfile))
			return
		}
		data.Values = map[string]string{"email": form.Email, "full_name": form.FullName}
		if err := s.validate.Struct(form); err != nil {
			data.Errors = fieldErrors(err)
			s.render(w, r, http.StatusUnprocessableEntity, pageProfile, data)
			return
		}

		current := data.User
		var patch authapi.UserUpdate
		if form.Email != current.Email {
			patch.Email = utils.Ptr(form.Email)
		}
		if form.FullName != current.FullName {
			patch.FullName = utils.Ptr(form.FullName)
		}
		if form.Password != "" {
			patch.Password = utils.Ptr(form.Password)
		}
		if patch == (authapi.UserUpdate{}) {
			redirectWithNotice(w, r, RouteProfile, "Nothing to update.")
			return
		}

		if err := c.Session.UpdateUser(r.Context(), patch); err != nil {
			if s.sessionLost(w, r, c, err) {
				return
			}
			data.alert("error", c.Session.State().Error)
			c.Session.ClearError()
			s.render(w, r, http.StatusOK, pageProfile, data)
			return
		}
		redirectWithNotice(w, r, RouteProfile, "Your profile has been updated.")
	}
}

type sessionsView struct {
	Table Table
}

// MySessionsHandler lists the signed-in user's own sessions.
func (s *Server) MySessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		data := s.newPageData(r, "My sessions")

		sessions, err := c.API.MySessions(r.Context())
		if err != nil {
			if s.sessionLost(w, r, c, err) {
				return
			}
			data.alert("error", apiclient.UserMessage(err))
		}

		data.Content = sessionsView{Table: sessionTable(sessions, RouteMySessions, false)}
		s.render(w, r, http.StatusOK, pageSessions, data)
	}
}

// RevokeSessionHandler revokes one session and returns to page. It serves both the user's own
// list and the administrator's list.
func (s *Server) RevokeSessionHandler(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			redirectWithError(w, r, page, "Unknown session.")
			return
		}

		if err := c.API.RevokeSession(r.Context(), id); err != nil {
			if s.sessionLost(w, r, c, err) {
				return
			}
			redirectWithError(w, r, page, apiclient.UserMessage(err))
			return
		}
		redirectWithNotice(w, r, page, "Session revoked.")
	}
}

func sessionTable(sessions []authapi.UserSession, page string, showUser bool) Table {
	t := Table{Columns: []string{"Device", "IP address", "Started", "Last active", "Expires"}, Empty: "No active sessions."}
	if showUser {
		t.Columns = append([]string{"User"}, t.Columns...)
	}

	for _, sess := range sessions {
		device := sess.UserAgent
		if device == "" {
			device = "Unknown device"
		}
		if sess.IsCurrent {
			device += " (this session)"
		}
		cells := []string{device, sess.IPAddress, formatTime(sess.CreatedAt), formatTime(sess.LastActivity), formatTime(sess.ExpiresAt)}
		if showUser {
			cells = append([]string{sess.Username}, cells...)
		}

		row := TableRow{Cells: cells}
		if !sess.IsCurrent {
			row.Actions = []RowAction{{
				Label:   "Revoke",
				Action:  page + "/" + strconv.FormatInt(sess.ID, 10) + "/revoke",
				Confirm: "Revoke this session? The device will be signed out.",
				Danger:  true,
			}}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
