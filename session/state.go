package session

import (
	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/tokenstore"
)

// State is the authentication session as the rest of the console sees it.
//
// IsAuthenticated holds only while User and both tokens are present and the access token was
// either validated against the backend or freshly issued by it.
type State struct {
	User            *authapi.UserProfile
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// InitialState is the state before bootstrap has settled.
func InitialState() State {
	return State{IsLoading: true}
}

// Tokens returns the pair held by the state.
func (s State) Tokens() tokenstore.Pair {
	return tokenstore.Pair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// IsAdmin reports whether the signed-in user is an administrator.
func (s State) IsAdmin() bool {
	return s.IsAuthenticated && s.User != nil && s.User.IsSuperuser
}

// IsRootTenant reports whether the signed-in user administers the root company.
func (s State) IsRootTenant(rootCompanyID int64) bool {
	return s.IsAdmin() && s.User.CompanyID == rootCompanyID
}

type EventType int

const (
	EventLoginStart EventType = iota
	EventLoginSuccess
	EventLoginFailure
	EventLogout
	EventTokenRefreshed
	EventUserUpdated
	EventUpdateFailure
	EventErrorCleared
	// EventSettled ends a bootstrap that found no usable session.
	EventSettled
	// EventExpired resets the session after a refresh failed mid-session.
	EventExpired
)

var eventNames = map[EventType]string{
	EventLoginStart:     "login_start",
	EventLoginSuccess:   "login_success",
	EventLoginFailure:   "login_failure",
	EventLogout:         "logout",
	EventTokenRefreshed: "token_refreshed",
	EventUserUpdated:    "user_updated",
	EventUpdateFailure:  "update_failure",
	EventErrorCleared:   "error_cleared",
	EventSettled:        "settled",
	EventExpired:        "expired",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one discrete change to the session.
type Event struct {
	Type  EventType
	User  *authapi.UserProfile
	Pair  tokenstore.Pair
	Error string
}

// Reduce applies e to s. It is the only place State changes.
func Reduce(s State, e Event) State {
	switch e.Type {
	case EventLoginStart:
		s.IsLoading = true
		s.Error = ""

	case EventLoginSuccess:
		if e.User == nil || !e.Pair.Complete() {
			return anonymous("incomplete session")
		}
		return State{
			User:            e.User,
			AccessToken:     e.Pair.AccessToken,
			RefreshToken:    e.Pair.RefreshToken,
			IsAuthenticated: true,
		}

	case EventLoginFailure, EventExpired:
		return anonymous(e.Error)

	case EventLogout, EventSettled:
		return anonymous("")

	case EventTokenRefreshed:
		s.AccessToken = e.Pair.AccessToken
		if e.Pair.RefreshToken != "" {
			s.RefreshToken = e.Pair.RefreshToken
		}

	case EventUserUpdated:
		if s.IsAuthenticated && e.User != nil {
			s.User = e.User
			s.Error = ""
		}

	case EventUpdateFailure:
		s.Error = e.Error

	case EventErrorCleared:
		s.Error = ""
	}
	return s
}

func anonymous(errMsg string) State {
	return State{Error: errMsg}
}
