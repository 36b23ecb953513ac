package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/rs/zerolog"
)

const defaultPageSize = 25

var pageSizes = []int{10, 25, 50, 100}

// UserPreferences is stored as JSON under tokenstore.UserPreferences.
type UserPreferences struct {
	PageSize int `json:"page_size,omitempty"`
}

func loadPreferences(ctx context.Context, store tokenstore.Store) UserPreferences {
	prefs := UserPreferences{PageSize: defaultPageSize}
	raw, err := store.Get(ctx, tokenstore.UserPreferences)
	if err != nil {
		return prefs
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil || prefs.PageSize <= 0 {
		prefs.PageSize = defaultPageSize
	}
	return prefs
}

func savePreferences(ctx context.Context, store tokenstore.Store, prefs UserPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return store.Set(ctx, tokenstore.UserPreferences, string(raw))
}

// ThemePreferenceHandler stores the colour theme. It works signed in or not.
func (s *Server) ThemePreferenceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		theme := r.FormValue("theme")
		if err := s.validate.Var(theme, "required,oneof=light dark"); err != nil {
			http.Error(w, "Unknown theme", http.StatusBadRequest)
			return
		}
		if err := c.Store.Set(r.Context(), tokenstore.Theme, theme); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to store theme")
			redirectWithError(w, r, returnTo(r), "Your preference could not be saved.")
			return
		}
		redirectSuccess(w, r, returnTo(r))
	}
}

// PageSizePreferenceHandler stores how many rows list pages show.
func (s *Server) PageSizePreferenceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		size, err := strconv.Atoi(r.FormValue("page_size"))
		if err != nil || s.validate.Var(size, "oneof=10 25 50 100") != nil {
			http.Error(w, "Unsupported page size", http.StatusBadRequest)
			return
		}

		prefs := loadPreferences(r.Context(), c.Store)
		prefs.PageSize = size
		if err := savePreferences(r.Context(), c.Store, prefs); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to store preferences")
			redirectWithError(w, r, returnTo(r), "Your preference could not be saved.")
			return
		}
		redirectSuccess(w, r, returnTo(r))
	}
}
