package server

import (
	"net/http"
)

// IndexHandler sends the site root to the dashboard; the guard takes it from there.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectSuccess(w, r, RouteDashboard)
	}
}
