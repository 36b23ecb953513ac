package authapi

import "time"

// UserProfile is the user record returned by the backend. It is a snapshot: the console replaces
// it wholesale and never edits it in place.
type UserProfile struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	CompanyID   int64      `json:"company_id,omitempty"`
	Roles       []Role     `json:"roles,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

// DisplayName prefers the full name.
func (u *UserProfile) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// TokenPair is what login and refresh hand back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// Credentials are the login form values.
type Credentials struct {
	Username string `form:"username" validate:"required,max=255"`
	Password string `form:"password" validate:"required"`
}

// UserUpdate is a partial update of the current user. Nil fields are left unchanged.
type UserUpdate struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=255"`
	Password *string `json:"password,omitempty" validate:"omitempty,password"`
}

// PasswordResetRequest asks the backend to mail a reset link.
type PasswordResetRequest struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

// PasswordReset confirms a reset with the mailed token.
type PasswordReset struct {
	Token       string `json:"token" form:"token" validate:"required"`
	NewPassword string `json:"new_password" form:"new_password" validate:"required,password"`
}

type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	CompanyID   int64        `json:"company_id,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ResourceID  int64  `json:"resource_id,omitempty"`
	Action      string `json:"action,omitempty"`
}

type Resource struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Integration is an API client registered for a company. ClientSecret is only populated on
// creation and after regenerating it.
type Integration struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	CompanyID    int64     `json:"company_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// UserSession is one signed-in device of a user.
type UserSession struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	LastActivity time.Time `json:"last_activity,omitzero"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	IsCurrent    bool      `json:"is_current,omitempty"`
}

// ActiveStats summarises signed-in users for the dashboard.
type ActiveStats struct {
	ActiveUsers    int `json:"active_users"`
	ActiveSessions int `json:"active_sessions"`
	TotalUsers     int `json:"total_users"`
}

// Message is the generic {"message": ...} acknowledgement body.
type Message struct {
	Message string `json:"message"`
}
