package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-console/guard"
)

const (
	noticeParam = "notice"
	errorParam  = "error"
)

func (s *Server) setConsoleCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     consoleCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies() || getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   consoleCookieAge,
	})
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectSuccess(w, r, withParam(path, errorParam, errorMsg))
}

// redirectWithNotice redirects with a success message for the target page to show.
func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	redirectSuccess(w, r, withParam(path, noticeParam, notice))
}

func withParam(path, key, value string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + url.Values{key: {value}}.Encode()
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// returnTo picks where a preference change sends the user back to: the referring page when it is
// on this site, otherwise the dashboard.
func returnTo(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return guard.RouteDashboard
	}
	if guard.RequirementFor(ref.Path).Public {
		return ref.Path
	}
	return guard.SafeNext(ref.RequestURI())
}
