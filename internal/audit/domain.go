package audit

import (
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-cms/internal/shared"
)

// Status is the outcome recorded with an entry.
type Status string

// Entry outcomes.
const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Action tags.
const (
	ActionPermissionDenied       = "PERMISSION_DENIED"
	ActionAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ActionUserCreated            = "USER_CREATED"
	ActionUserUpdated            = "USER_UPDATED"
	ActionUserDeleted            = "USER_DELETED"
	ActionRoleAssigned           = "ROLE_ASSIGNED"
	ActionUserRegistered         = "USER_REGISTERED"
	ActionUserLogin              = "USER_LOGIN"
	ActionUserLoginFailed        = "USER_LOGIN_FAILED"
	ActionPasswordChanged        = "PASSWORD_CHANGED"
)

// unknownMeta is stored when request metadata is unavailable.
const unknownMeta = "N/A"

// ErrInvalidFilter reports malformed query filters.
var ErrInvalidFilter = errors.New("audit: invalid filter")

// Entry is an immutable record of an authorization-relevant event. Empty
// ActorID and ResourceID are stored as NULL.
type Entry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actorId,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resourceId,omitempty"`
	Status     Status         `json:"status"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ipAddress"`
	UserAgent  string         `json:"userAgent"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Filters narrows an audit query. Zero values disable a filter.
type Filters struct {
	ActorID  string
	Action   string
	Resource string
	Status   Status
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}

// Page is one page of entries ordered newest first.
type Page struct {
	Entries    []Entry           `json:"logs"`
	Pagination shared.Pagination `json:"pagination"`
}

// ActionCount aggregates entries per action tag.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}
