package auth

import "time"

// LoginSession is the persisted record of an authenticated session.
type LoginSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
}

// ClientInfo carries request metadata recorded with auth events.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// RegisterInput is a self-service sign-up. Role is accepted for compatibility
// and ignored; new accounts always get the user role.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role,omitempty"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
