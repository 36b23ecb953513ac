package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-console/internal/config"
	"github.com/jrsteele09/go-auth-console/internal/validate"
	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	storage  tokenstore.Provider
	consoles *ConsoleRegistry
	throttle *loginThrottle
	validate *validate.Validator
	pages    pageSet
}

// New creates the console web server. Per-browser token storage comes from storage.
func New(config config.Config, storage tokenstore.Provider) (*Server, error) {
	if storage == nil {
		return nil, errors.New("[Server New] token storage is required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		storage:  storage,
		validate: validate.New(),
	}
	s.env = config.GetEnv()

	consoles, err := NewConsoleRegistry(config.GetMaxConsoles(), s.newConsole)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create console registry: %w", err)
	}
	s.consoles = consoles

	throttle, err := newLoginThrottle(config.GetLoginRate(), config.GetLoginBurst(), config.GetMaxConsoles())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create login throttle: %w", err)
	}
	s.throttle = throttle

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}
	s.pages = pages

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Consoles exposes the registry of per-browser sessions.
func (s *Server) Consoles() *ConsoleRegistry {
	return s.consoles
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%s] %s", colorMethod(method), path)
}

// newAPILimiter returns nil when API rate limiting is off.
func (s *Server) newAPILimiter() *rate.Limiter {
	limit := s.config.GetAPIRateLimit()
	if limit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(limit), max(1, s.config.GetAPIRateBurst()))
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
