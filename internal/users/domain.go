package users

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("users: email already registered")
	// ErrSelfAction rejects deleting or deactivating the caller's own account.
	ErrSelfAction = errors.New("users: cannot apply to own account")
	// ErrInvalidRole indicates an unknown role name.
	ErrInvalidRole = errors.New("users: invalid role")
	// ErrWrongPassword indicates the current password did not match.
	ErrWrongPassword = errors.New("users: current password is incorrect")
	// ErrInvalidInput indicates a request that failed domain validation.
	ErrInvalidInput = errors.New("users: invalid input")
)

// User represents an account.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         rbac.Role  `json:"role"`
	IsActive     bool       `json:"isActive"`
	CreatedBy    string     `json:"createdBy,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Kind implements rbac.Resource.
func (u User) Kind() rbac.ResourceKind { return rbac.KindUser }

// ResourceID implements rbac.Resource.
func (u User) ResourceID() string { return u.ID }

// OwnerRef exposes the account itself as "id" and its creator as "createdBy".
func (u User) OwnerRef(field string) (string, bool) {
	switch field {
	case rbac.OwnerFieldID:
		return u.ID, true
	case rbac.OwnerFieldCreatedBy:
		return u.CreatedBy, u.CreatedBy != ""
	default:
		return "", false
	}
}

// Actor converts the account into the identity used by the gate.
func (u User) Actor() *rbac.Actor {
	return &rbac.Actor{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive}
}

// ListFilters narrows the admin user listing.
type ListFilters struct {
	Role     rbac.Role
	IsActive *bool
	Search   string
	Page     int
	Limit    int
}

// ListResult is one page of users.
type ListResult struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

// CreateInput holds the fields for an admin-created account.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}

// UpdateInput holds optional admin edits.
type UpdateInput struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// ProfileInput holds self-service profile edits.
type ProfileInput struct {
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
}

// PasswordInput changes the caller's password.
type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

// RoleCount is the number of accounts holding a role.
type RoleCount struct {
	Role  rbac.Role `json:"role"`
	Count int       `json:"count"`
}

// Stats summarises the account population.
type Stats struct {
	Total    int         `json:"total"`
	Active   int         `json:"active"`
	Inactive int         `json:"inactive"`
	ByRole   []RoleCount `json:"byRole"`
}

// NormalizeEmail trims and case-folds an email address. A Caser keeps
// state, so one is built per call.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}
