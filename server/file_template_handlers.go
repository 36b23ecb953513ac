package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/guard"
	"github.com/jrsteele09/go-auth-console/tokenstore"
	"github.com/rs/zerolog"
)

//go:embed templates/*
var templateFiles embed.FS

const contentTypeHTML = "text/html; charset=utf-8"

// Page templates. Each is parsed together with the layout and the shared components.
const (
	pageLogin          = "login.html"
	pageForgotPassword = "forgot_password.html"
	pageResetPassword  = "reset_password.html"
	pageDashboard      = "dashboard.html"
	pageProfile        = "profile.html"
	pageSessions       = "sessions.html"
	pageAdminList      = "admin_list.html"
	pageLoading        = "loading.html"
)

var pageNames = []string{
	pageLogin, pageForgotPassword, pageResetPassword, pageDashboard,
	pageProfile, pageSessions, pageAdminList, pageLoading,
}

type pageSet map[string]*template.Template

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

var templateFuncs = template.FuncMap{
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	},
	"active": func(current, route string) bool {
		return current == route
	},
	"deref": func(t *time.Time) time.Time {
		if t == nil {
			return time.Time{}
		}
		return *t
	},
	"dict": func(pairs ...any) (map[string]any, error) {
		if len(pairs)%2 != 0 {
			return nil, fmt.Errorf("dict: odd number of arguments")
		}
		m := make(map[string]any, len(pairs)/2)
		for i := 0; i < len(pairs); i += 2 {
			key, ok := pairs[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
			}
			m[key] = pairs[i+1]
		}
		return m, nil
	},
}

// ParseTemplate parses one page with the layout and components from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	return template.New("layout.html").Funcs(templateFuncs).ParseFS(TemplateFilesFS(), "layout.html", "components.html", name)
}

func parsePages() (pageSet, error) {
	pages := make(pageSet, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("[parsePages] %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// Alert is a dismissible message at the top of a page.
type Alert struct {
	Kind    string // "error", "success" or "info"
	Message string
}

// Modal is a dialog shown over the page on load.
type Modal struct {
	Title  string
	Body   string
	Secret string
}

// Table is the shared list view: header columns, rows of cells and per-row actions.
type Table struct {
	Columns []string
	Rows    []TableRow
	Empty   string
}

type TableRow struct {
	Cells   []string
	Actions []RowAction
	Muted   bool
}

// RowAction is a form post from a table row. A non-empty Confirm asks the user first.
type RowAction struct {
	Label   string
	Action  string
	Confirm string
	Danger  bool
}

// Pager links to the neighbouring pages of a list.
type Pager struct {
	Prev     string
	Next     string
	PageSize int
	Sizes    []int
}

// PageData is the model every page template is executed with.
type PageData struct {
	AppName string
	Title   string
	Active  string
	User    *authapi.UserProfile
	IsAdmin bool
	IsRoot  bool
	Theme   string
	Alerts  []Alert
	Errors  map[string]string
	Values  map[string]string
	Next    string
	Refresh string
	Content any
}

// Error returns the validation message for a form field.
func (p PageData) Error(field string) string {
	return p.Errors[field]
}

// Value returns a submitted form value to re-populate a field.
func (p PageData) Value(field string) string {
	return p.Values[field]
}

// newPageData fills the fields every page shares from the console's session.
func (s *Server) newPageData(r *http.Request, title string) PageData {
	data := PageData{
		AppName: s.config.GetAppName(),
		Title:   title,
		Active:  guard.PageFor(r.URL.Path),
		Theme:   "light",
	}

	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		return data
	}
	data.Theme = loadTheme(r.Context(), c.Store)

	state := c.Session.State()
	if state.IsAuthenticated {
		data.User = state.User
		data.IsAdmin = state.IsAdmin()
		data.IsRoot = state.IsRootTenant(s.config.GetRootCompanyID())
	}

	q := r.URL.Query()
	if msg := q.Get(noticeParam); msg != "" {
		data.Alerts = append(data.Alerts, Alert{Kind: "success", Message: msg})
	}
	if msg := q.Get(errorParam); msg != "" {
		data.Alerts = append(data.Alerts, Alert{Kind: "error", Message: msg})
	}
	return data
}

func (d *PageData) alert(kind, message string) {
	if message == "" {
		return
	}
	d.Alerts = append(d.Alerts, Alert{Kind: kind, Message: message})
}

// render executes a page into a buffer first so a template error never leaves half a page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	tmpl, ok := s.pages[page]
	if !ok {
		zerolog.Ctx(r.Context()).Error().Str("page", page).Msg("Unknown page template")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		zerolog.Ctx(r.Context()).Err(err).Str("page", page).Msg("Failed to render template")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderLoading is the placeholder shown while a session is still being restored. It reloads
// the page until the guard can decide.
func (s *Server) renderLoading(w http.ResponseWriter, r *http.Request, page string) {
	data := s.newPageData(r, "Loading")
	data.Refresh = page
	w.Header().Set("Refresh", "1; url="+page)
	s.render(w, r, http.StatusOK, pageLoading, data)
}

func loadTheme(ctx context.Context, store tokenstore.Store) string {
	theme, err := store.Get(ctx, tokenstore.Theme)
	if err != nil || strings.TrimSpace(theme) == "" {
		return "light"
	}
	return theme
}
