package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// Request describes one logical API call. It is a value: every modifier returns a copy, and a
// refresh-triggered retry is a new Request with its attempt count bumped, so the one-retry rule
// never depends on mutating something shared.
type Request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	attempt     int
	skipRefresh bool
}

// NewRequest creates a request for a path relative to the API prefix, e.g. "/users/me".
func NewRequest(method, path string) Request {
	return Request{method: method, path: path}
}

func (r Request) Method() string { return r.method }
func (r Request) Path() string   { return r.path }
func (r Request) Attempt() int   { return r.attempt }

// Retried reports whether this request is already a refresh-triggered retry.
func (r Request) Retried() bool { return r.attempt > 0 }

// Retry returns the descriptor for the single re-dispatch after a refresh.
func (r Request) Retry() Request {
	r.attempt++
	return r
}

// WithQuery sets the query string.
func (r Request) WithQuery(q url.Values) Request {
	cloned := make(url.Values, len(q))
	for k, v := range q {
		cloned[k] = append([]string(nil), v...)
	}
	r.query = cloned
	return r
}

// WithJSON sets a JSON body.
func (r Request) WithJSON(v any) (Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return r, fmt.Errorf("[Request.WithJSON] %s %s: %w", r.method, r.path, err)
	}
	r.body = data
	r.contentType = contentTypeJSON
	return r, nil
}

// WithForm sets a form-encoded body.
func (r Request) WithForm(v url.Values) Request {
	r.body = []byte(v.Encode())
	r.contentType = contentTypeForm
	return r
}

// WithoutRefresh marks a request whose 401 must never trigger a refresh (login, refresh itself).
func (r Request) WithoutRefresh() Request {
	r.skipRefresh = true
	return r
}

func (r Request) bodyReader() io.Reader {
	if r.body == nil {
		return nil
	}
	return bytes.NewReader(r.body)
}

func (r Request) url(base string) string {
	u := base + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	return u
}
