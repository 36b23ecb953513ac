package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/authapi"
)

// listing describes one administration list page over a backend collection.
type listing[T any] struct {
	title      string
	route      string
	noun       string
	columns    []string
	collection func(*authapi.Service) *authapi.Collection[T]
	id         func(T) int64
	cells      func(T) []string
	actions    func(T) []RowAction
}

type adminListView struct {
	Table Table
	Pager *Pager
	Modal *Modal
}

func (l listing[T]) table(items []T) Table {
	t := Table{Columns: l.columns, Empty: fmt.Sprintf("No %s yet.", strings.ToLower(l.title))}
	for _, item := range items {
		row := TableRow{Cells: l.cells(item)}
		row.Actions = append(row.Actions, RowAction{
			Label:   "Delete",
			Action:  l.actionPath(l.id(item), "delete"),
			Confirm: fmt.Sprintf("Delete this %s? This cannot be undone.", l.noun),
			Danger:  true,
		})
		if l.actions != nil {
			row.Actions = append(l.actions(item), row.Actions...)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (l listing[T]) actionPath(id int64, action string) string {
	return l.route + "/" + strconv.FormatInt(id, 10) + "/" + action
}

// adminListHandler renders one page of a collection.
func adminListHandler[T any](s *Server, l listing[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderListing(s, w, r, l, nil)
	}
}

func renderListing[T any](s *Server, w http.ResponseWriter, r *http.Request, l listing[T], modal *Modal) {
	c, _ := ConsoleFromContext(r.Context())
	data := s.newPageData(r, l.title)

	opts := s.listOptions(r.Context(), c, r.URL.Query())
	items, err := l.collection(c.API).List(r.Context(), opts)
	if err != nil {
		if s.sessionLost(w, r, c, err) {
			return
		}
		data.alert("error", apiclient.UserMessage(err))
	}

	data.Content = adminListView{
		Table: l.table(items),
		Pager: pager(l.route, opts, len(items)),
		Modal: modal,
	}
	s.render(w, r, http.StatusOK, pageAdminList, data)
}

// adminDeleteHandler deletes the item named in the path and returns to the list.
func adminDeleteHandler[T any](s *Server, l listing[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			redirectWithError(w, r, l.route, fmt.Sprintf("Unknown %s.", l.noun))
			return
		}

		if err := l.collection(c.API).Delete(r.Context(), id); err != nil {
			if s.sessionLost(w, r, c, err) {
				return
			}
			redirectWithError(w, r, l.route, apiclient.UserMessage(err))
			return
		}
		redirectWithNotice(w, r, l.route, fmt.Sprintf("The %s was deleted.", l.noun))
	}
}

// RegenerateSecretHandler issues a new client secret and shows it once in a modal. The secret is
// rendered directly rather than redirected so it never lands in a URL.
func (s *Server) RegenerateSecretHandler() http.HandlerFunc {
	l := integrationsListing()
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			redirectWithError(w, r, l.route, "Unknown integration.")
			return
		}

		integration, err := c.API.RegenerateIntegrationSecret(r.Context(), id)
		if err != nil {
			if s.sessionLost(w, r, c, err) {
				return
			}
			redirectWithError(w, r, l.route, apiclient.UserMessage(err))
			return
		}

		renderListing(s, w, r, l, &Modal{
			Title:  "New client secret for " + integration.Name,
			Body:   "Copy the secret now. It will not be shown again.",
			Secret: integration.ClientSecret,
		})
	}
}

// AdminSessionsHandler lists every active session across users.
func (s *Server) AdminSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := ConsoleFromContext(r.Context())
		data := s.newPageData(r, "Active sessions")

		sessions, err := c.API.ActiveSessions(r.Context())
		if err != nil {
			if s.sessionLost(w, r, c, err) {
				return
			}
			data.alert("error", apiclient.UserMessage(err))
		}

		data.Content = sessionsView{Table: sessionTable(sessions, RouteAdminSessions, true)}
		s.render(w, r, http.StatusOK, pageSessions, data)
	}
}

func usersListing() listing[authapi.UserProfile] {
	return listing[authapi.UserProfile]{
		title:      "Users",
		route:      RouteAdminUsers,
		noun:       "user",
		columns:    []string{"ID", "Username", "Email", "Name", "Company", "Active", "Admin", "Last sign in"},
		collection: func(api *authapi.Service) *authapi.Collection[authapi.UserProfile] { return api.Users },
		id:         func(u authapi.UserProfile) int64 { return u.ID },
		cells: func(u authapi.UserProfile) []string {
			lastLogin := "-"
			if u.LastLogin != nil {
				lastLogin = formatTime(*u.LastLogin)
			}
			return []string{
				strconv.FormatInt(u.ID, 10), u.Username, u.Email, u.FullName,
				formatID(u.CompanyID), yesNo(u.IsActive), yesNo(u.IsSuperuser), lastLogin,
			}
		},
	}
}

func rolesListing() listing[authapi.Role] {
	return listing[authapi.Role]{
		title:      "Roles",
		route:      RouteAdminRoles,
		noun:       "role",
		columns:    []string{"ID", "Name", "Description", "Company", "Permissions"},
		collection: func(api *authapi.Service) *authapi.Collection[authapi.Role] { return api.Roles },
		id:         func(r authapi.Role) int64 { return r.ID },
		cells: func(r authapi.Role) []string {
			names := make([]string, 0, len(r.Permissions))
			for _, p := range r.Permissions {
				names = append(names, p.Name)
			}
			return []string{strconv.FormatInt(r.ID, 10), r.Name, r.Description, formatID(r.CompanyID), strings.Join(names, ", ")}
		},
	}
}

func permissionsListing() listing[authapi.Permission] {
	return listing[authapi.Permission]{
		title:      "Permissions",
		route:      RouteAdminPermissions,
		noun:       "permission",
		columns:    []string{"ID", "Name", "Action", "Resource", "Description"},
		collection: func(api *authapi.Service) *authapi.Collection[authapi.Permission] { return api.Permissions },
		id:         func(p authapi.Permission) int64 { return p.ID },
		cells: func(p authapi.Permission) []string {
			return []string{strconv.FormatInt(p.ID, 10), p.Name, p.Action, formatID(p.ResourceID), p.Description}
		},
	}
}

func resourcesListing() listing[authapi.Resource] {
	return listing[authapi.Resource]{
		title:      "Resources",
		route:      RouteAdminResources,
		noun:       "resource",
		columns:    []string{"ID", "Name", "Description"},
		collection: func(api *authapi.Service) *authapi.Collection[authapi.Resource] { return api.Resources },
		id:         func(r authapi.Resource) int64 { return r.ID },
		cells: func(r authapi.Resource) []string {
			return []string{strconv.FormatInt(r.ID, 10), r.Name, r.Description}
		},
	}
}

func companiesListing() listing[authapi.Company] {
	return listing[authapi.Company]{
		title:      "Companies",
		route:      RouteAdminCompanies,
		noun:       "company",
		columns:    []string{"ID", "Name", "Domain", "Active", "Created"},
		collection: func(api *authapi.Service) *authapi.Collection[authapi.Company] { return api.Companies },
		id:         func(c authapi.Company) int64 { return c.ID },
		cells: func(c authapi.Company) []string {
			return []string{strconv.FormatInt(c.ID, 10), c.Name, c.Domain, yesNo(c.IsActive), formatTime(c.CreatedAt)}
		},
	}
}

func integrationsListing() listing[authapi.Integration] {
	l := listing[authapi.Integration]{
		title:      "Integrations",
		route:      RouteAdminIntegrations,
		noun:       "integration",
		columns:    []string{"ID", "Name", "Client ID", "Company", "Active", "Created"},
		collection: func(api *authapi.Service) *authapi.Collection[authapi.Integration] { return api.Integrations },
		id:         func(i authapi.Integration) int64 { return i.ID },
		cells: func(i authapi.Integration) []string {
			return []string{strconv.FormatInt(i.ID, 10), i.Name, i.ClientID, formatID(i.CompanyID), yesNo(i.IsActive), formatTime(i.CreatedAt)}
		},
	}
	l.actions = func(i authapi.Integration) []RowAction {
		return []RowAction{{
			Label:   "New secret",
			Action:  l.actionPath(i.ID, "regenerate-secret"),
			Confirm: "Generate a new client secret? The current secret stops working immediately.",
		}}
	}
	return l
}

// listOptions reads the page offset from the query and the page size from the user's preferences.
func (s *Server) listOptions(ctx context.Context, c *Console, q url.Values) authapi.ListOptions {
	skip, err := strconv.Atoi(q.Get("skip"))
	if err != nil || skip < 0 {
		skip = 0
	}
	return authapi.ListOptions{Skip: skip, Limit: loadPreferences(ctx, c.Store).PageSize}
}

// pager offers a next link only when the page came back full.
func pager(route string, opts authapi.ListOptions, n int) *Pager {
	p := &Pager{PageSize: opts.Limit, Sizes: pageSizes}
	if opts.Skip > 0 {
		p.Prev = route + "?skip=" + strconv.Itoa(max(0, opts.Skip-opts.Limit))
	}
	if n >= opts.Limit {
		p.Next = route + "?skip=" + strconv.Itoa(opts.Skip+opts.Limit)
	}
	return p
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatID(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
