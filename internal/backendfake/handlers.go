package backendfake

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-console/authapi"
)

var errUnknownUser = errors.New("unknown user")

// adminCollections are served by the generic entity handlers. Companies are limited to root
// tenant administrators.
var adminCollections = []string{
	authapi.PathRoles,
	authapi.PathPermissions,
	authapi.PathResources,
	authapi.PathCompanies,
	authapi.PathIntegrations,
}

// record counts every request by "METHOD /path" (prefix stripped) and applies injected failures.
func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + strings.TrimPrefix(r.URL.Path, b.prefix)

		b.mu.Lock()
		b.calls[route]++
		status, fail := b.failures[route]
		b.mu.Unlock()

		if fail {
			writeDetail(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) registerRoutes(mux *http.ServeMux) {
	p := b.prefix
	mux.HandleFunc("POST "+p+"/auth/login", b.handleLogin)
	mux.HandleFunc("POST "+p+"/auth/logout", b.authenticated(b.handleLogout))
	mux.HandleFunc("POST "+p+"/auth/refresh", b.handleRefresh)
	mux.HandleFunc("POST "+p+authapi.PathPasswordResetRequest, b.handleResetRequest)
	mux.HandleFunc("POST "+p+authapi.PathPasswordReset, b.handleReset)

	mux.HandleFunc("GET "+p+"/users/me", b.authenticated(b.handleGetMe))
	mux.HandleFunc("PUT "+p+"/users/me", b.authenticated(b.handleUpdateMe))
	mux.HandleFunc("GET "+p+authapi.PathMySessions, b.authenticated(b.handleMySessions))
	mux.HandleFunc("GET "+p+authapi.PathActiveSessions, b.admin(b.handleActiveSessions))
	mux.HandleFunc("DELETE "+p+authapi.PathUserSessions+"/{id}", b.authenticated(b.handleRevokeSession))
	mux.HandleFunc("GET "+p+authapi.PathActiveStats, b.admin(b.handleActiveStats))

	mux.HandleFunc("GET "+p+"/users", b.admin(b.handleListUsers))
	mux.HandleFunc("POST "+p+"/users", b.admin(b.handleCreateUser))
	mux.HandleFunc("GET "+p+"/users/{id}", b.admin(b.handleGetUser))
	mux.HandleFunc("PUT "+p+"/users/{id}", b.admin(b.handleUpdateUser))
	mux.HandleFunc("DELETE "+p+"/users/{id}", b.admin(b.handleDeleteUser))

	for _, c := range adminCollections {
		guard := b.admin
		if c == authapi.PathCompanies {
			guard = b.root
		}
		mux.HandleFunc("GET "+p+c, guard(b.handleList(c)))
		mux.HandleFunc("POST "+p+c, guard(b.handleCreate(c)))
		mux.HandleFunc("GET "+p+c+"/{id}", guard(b.handleGet(c)))
		mux.HandleFunc("PUT "+p+c+"/{id}", guard(b.handleUpdate(c)))
		mux.HandleFunc("DELETE "+p+c+"/{id}", guard(b.handleDelete(c)))
	}
	mux.HandleFunc("POST "+p+authapi.PathIntegrations+"/{id}/regenerate-secret", b.admin(b.handleRegenerateSecret))
}

type userHandler func(w http.ResponseWriter, r *http.Request, u *user)

func (b *Backend) authenticated(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		id, err := b.parseAccess(raw)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		b.mu.Lock()
		u, found := b.users[id]
		active := found && u.IsActive
		b.mu.Unlock()
		if !active {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r, u)
	}
}

func (b *Backend) admin(next userHandler) http.HandlerFunc {
	return b.authenticated(func(w http.ResponseWriter, r *http.Request, u *user) {
		if !u.IsSuperuser {
			writeDetail(w, http.StatusForbidden, "Not enough permissions")
			return
		}
		next(w, r, u)
	})
}

func (b *Backend) root(next userHandler) http.HandlerFunc {
	return b.admin(func(w http.ResponseWriter, r *http.Request, u *user) {
		if u.CompanyID != RootCompanyID {
			writeDetail(w, http.StatusForbidden, "Root tenant access required")
			return
		}
		next(w, r, u)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid form")
		return
	}
	if gt := r.PostForm.Get("grant_type"); gt != "" && gt != "password" {
		writeDetail(w, http.StatusBadRequest, "Unsupported grant type")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.userByName(r.PostForm.Get("username"))
	if u == nil || u.password != r.PostForm.Get("password") {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if !u.IsActive {
		writeDetail(w, http.StatusBadRequest, "Inactive user")
		return
	}

	now := b.now().UTC()
	u.LastLogin = &now
	s := b.openSession(u, r.UserAgent(), r.RemoteAddr)
	tr, err := b.issuePair(u, s.ID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeValidation(w, "refresh_token", "field required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rt, ok := b.refreshTokens[body.RefreshToken]
	if !ok || b.now().Sub(rt.Iat) > b.refreshTTL {
		delete(b.refreshTokens, body.RefreshToken)
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	u, ok := b.users[rt.UserID]
	if !ok || !u.IsActive {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if s, ok := b.sessions[rt.SessionID]; ok {
		s.LastActivity = b.now().UTC()
	}
	tr, err := b.issuePair(u, rt.SessionID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if rt, ok := b.refreshTokens[body.RefreshToken]; ok && rt.UserID == u.ID {
		b.closeSession(rt.SessionID)
	}
	writeJSON(w, http.StatusOK, authapi.Message{Message: "Successfully logged out"})
}

func (b *Backend) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var body authapi.PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeValidation(w, "email", "field required")
		return
	}
	b.mu.Lock()
	b.resetRequests = append(b.resetRequests, body.Email)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, authapi.Message{Message: "If the email exists, a reset link has been sent"})
}

func (b *Backend) handleReset(w http.ResponseWriter, r *http.Request) {
	var body authapi.PasswordReset
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidation(w, "token", "field required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.resetTokens[body.Token]
	u, found := b.users[userID]
	if !ok || !found {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	delete(b.resetTokens, body.Token)
	u.password = body.NewPassword
	writeJSON(w, http.StatusOK, authapi.Message{Message: "Password has been reset"})
}

func (b *Backend) handleGetMe(w http.ResponseWriter, _ *http.Request, u *user) {
	b.mu.Lock()
	profile := u.UserProfile
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, profile)
}

func (b *Backend) handleUpdateMe(w http.ResponseWriter, r *http.Request, u *user) {
	var patch authapi.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if patch.Email != nil {
		for _, other := range b.users {
			if other.ID != u.ID && other.Email == *patch.Email {
				writeDetail(w, http.StatusBadRequest, "Email already registered")
				return
			}
		}
		u.Email = *patch.Email
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.Password != nil {
		u.password = *patch.Password
	}
	writeJSON(w, http.StatusOK, u.UserProfile)
}

func (b *Backend) handleMySessions(w http.ResponseWriter, _ *http.Request, u *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]authapi.UserSession, 0)
	for _, s := range b.sortedSessions() {
		if s.UserID == u.ID {
			out = append(out, s)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleActiveSessions(w http.ResponseWriter, _ *http.Request, _ *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.sortedSessions())
}

func (b *Backend) handleRevokeSession(w http.ResponseWriter, r *http.Request, u *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s, found := b.sessions[id]
	if !found {
		writeDetail(w, http.StatusNotFound, "Session not found")
		return
	}
	if s.UserID != u.ID && !u.IsSuperuser {
		writeDetail(w, http.StatusForbidden, "Not enough permissions")
		return
	}
	b.closeSession(id)
	writeJSON(w, http.StatusOK, authapi.Message{Message: "Session revoked"})
}

func (b *Backend) handleActiveStats(w http.ResponseWriter, _ *http.Request, _ *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	active := make(map[int64]struct{})
	for _, s := range b.sessions {
		active[s.UserID] = struct{}{}
	}
	writeJSON(w, http.StatusOK, authapi.ActiveStats{
		ActiveUsers:    len(active),
		ActiveSessions: len(b.sessions),
		TotalUsers:     len(b.users),
	})
}

func (b *Backend) sortedSessions() []authapi.UserSession {
	out := make([]authapi.UserSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) handleListUsers(w http.ResponseWriter, r *http.Request, _ *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]authapi.UserProfile, 0, len(b.users))
	for _, u := range b.users {
		out = append(out, u.UserProfile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, page(out, r))
}

func (b *Backend) handleCreateUser(w http.ResponseWriter, r *http.Request, _ *user) {
	var body struct {
		authapi.UserProfile
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeValidation(w, "username", "field required")
		return
	}

	b.mu.Lock()
	if b.userByName(body.Username) != nil {
		b.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	b.mu.Unlock()

	body.UserProfile.ID = 0
	created := b.AddUser(body.UserProfile, body.Password)
	writeJSON(w, http.StatusOK, created)
}

func (b *Backend) handleGetUser(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	u, found := b.users[id]
	if !found {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u.UserProfile)
}

func (b *Backend) handleUpdateUser(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch struct {
		Email       *string `json:"email"`
		FullName    *string `json:"full_name"`
		IsActive    *bool   `json:"is_active"`
		IsSuperuser *bool   `json:"is_superuser"`
		CompanyID   *int64  `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, found := b.users[id]
	if !found {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if patch.IsSuperuser != nil {
		u.IsSuperuser = *patch.IsSuperuser
	}
	if patch.CompanyID != nil {
		u.CompanyID = *patch.CompanyID
	}
	writeJSON(w, http.StatusOK, u.UserProfile)
}

func (b *Backend) handleDeleteUser(w http.ResponseWriter, r *http.Request, caller *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if id == caller.ID {
		writeDetail(w, http.StatusBadRequest, "Users cannot delete themselves")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, found := b.users[id]; !found {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	delete(b.users, id)
	for sid, s := range b.sessions {
		if s.UserID == id {
			b.closeSession(sid)
		}
	}
	writeJSON(w, http.StatusOK, authapi.Message{Message: "User deleted"})
}

func (b *Backend) handleList(collection string) userHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *user) {
		b.mu.Lock()
		defer b.mu.Unlock()
		items := b.entities[collection]
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			out = append(out, public(item))
		}
		sort.Slice(out, func(i, j int) bool { return out[i]["id"].(int64) < out[j]["id"].(int64) })
		writeJSON(w, http.StatusOK, page(out, r))
	}
}

func (b *Backend) handleGet(collection string) userHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *user) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		item, found := b.entities[collection][id]
		if !found {
			writeDetail(w, http.StatusNotFound, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, public(item))
	}
}

func (b *Backend) handleCreate(collection string) userHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *user) {
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid body")
			return
		}
		if name, _ := fields["name"].(string); name == "" {
			writeValidation(w, "name", "field required")
			return
		}
		if collection == authapi.PathIntegrations {
			fields["client_id"] = uuid.New().String()
			secret, err := newRefreshToken()
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, err.Error())
				return
			}
			fields["client_secret"] = secret
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		id := b.insert(collection, fields)
		writeJSON(w, http.StatusOK, b.entities[collection][id])
	}
}

func (b *Backend) handleUpdate(collection string) userHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *user) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid body")
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		item, found := b.entities[collection][id]
		if !found {
			writeDetail(w, http.StatusNotFound, "Not found")
			return
		}
		for k, v := range fields {
			if k != "id" && k != "client_id" && k != "client_secret" {
				item[k] = v
			}
		}
		writeJSON(w, http.StatusOK, public(item))
	}
}

func (b *Backend) handleDelete(collection string) userHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *user) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, found := b.entities[collection][id]; !found {
			writeDetail(w, http.StatusNotFound, "Not found")
			return
		}
		delete(b.entities[collection], id)
		writeJSON(w, http.StatusOK, authapi.Message{Message: "Deleted"})
	}
}

func (b *Backend) handleRegenerateSecret(w http.ResponseWriter, r *http.Request, _ *user) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	secret, err := newRefreshToken()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	item, found := b.entities[authapi.PathIntegrations][id]
	if !found {
		writeDetail(w, http.StatusNotFound, "Integration not found")
		return
	}
	item["client_secret"] = secret
	writeJSON(w, http.StatusOK, item)
}

// public hides secrets outside create and regenerate responses.
func public(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		if k != "client_secret" {
			out[k] = v
		}
	}
	return out
}

func page[T any](items []T, r *http.Request) []T {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if skip > len(items) {
		skip = len(items)
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeValidation(w, "id", "value is not a valid integer")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg, "type": "value_error"}},
	})
}
