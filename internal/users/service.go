package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters, offset, limit int) ([]User, error)
	Count(ctx context.Context, filters ListFilters) (int, error)
	Get(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user User) error
	Update(ctx context.Context, user User) error
	SetPassword(ctx context.Context, id, hash string, at time.Time) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	RecentLogins(ctx context.Context, limit int) ([]User, error)
}

// Auditor receives privileged mutation records.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Caller identifies who performs a mutation and from where.
type Caller struct {
	Actor     *rbac.Actor
	IPAddress string
	UserAgent string
}

func (c Caller) actorID() string {
	if c.Actor == nil {
		return ""
	}
	return c.Actor.ID
}

func (c Caller) actorEmail() string {
	if c.Actor == nil {
		return ""
	}
	return c.Actor.Email
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	auditor    Auditor
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	bcryptCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		auditor:    auditor,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// HashPassword hashes a plain text password with the service cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// List returns a filtered page of users.
func (s *Service) List(ctx context.Context, filters ListFilters) (ListResult, error) {
	if filters.Role != "" {
		role, ok := rbac.ParseRole(string(filters.Role))
		if !ok {
			return ListResult{}, ErrInvalidRole
		}
		filters.Role = role
	}
	filters.Search = strings.TrimSpace(filters.Search)
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 {
		filters.Limit = defaultLimit
	}
	if filters.Limit > maxLimit {
		filters.Limit = maxLimit
	}
	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	pagination := shared.NewPagination(filters.Page, filters.Limit, total)
	users, err := s.repo.List(ctx, filters, pagination.Offset(), filters.Limit)
	if err != nil {
		return ListResult{}, err
	}
	if users == nil {
		users = []User{}
	}
	return ListResult{Users: users, Pagination: pagination}, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail looks up an account by its normalized email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, NormalizeEmail(email))
}

// TouchLogin stamps the last login time.
func (s *Service) TouchLogin(ctx context.Context, id string) error {
	return s.repo.TouchLogin(ctx, id, s.now())
}

// Create adds an account with any role. The attempt is always audited.
func (s *Service) Create(ctx context.Context, caller Caller, input CreateInput) (User, error) {
	user, err := s.create(ctx, caller, input)
	details := map[string]any{
		"email":     NormalizeEmail(input.Email),
		"name":      strings.TrimSpace(input.Name),
		"role":      input.Role,
		"createdBy": caller.actorEmail(),
	}
	s.audit(ctx, caller, audit.ActionUserCreated, user.ID, details, err)
	return user, err
}

func (s *Service) create(ctx context.Context, caller Caller, input CreateInput) (User, error) {
	role, ok := rbac.ParseRole(input.Role)
	if !ok {
		return User{}, ErrInvalidRole
	}
	return s.insert(ctx, input.Email, input.Name, input.Password, role, caller.actorID())
}

// Register creates a self-service account. The role is always user.
func (s *Service) Register(ctx context.Context, email, name, password string) (User, error) {
	return s.insert(ctx, email, name, password, rbac.RoleUser, "")
}

func (s *Service) insert(ctx context.Context, email, name, password string, role rbac.Role, createdBy string) (User, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return User{}, ErrInvalidInput
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	user := User{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Update applies admin edits. The attempt is always audited.
func (s *Service) Update(ctx context.Context, caller Caller, id string, input UpdateInput) (User, error) {
	before, after, err := s.update(ctx, caller, id, input)
	details := map[string]any{
		"changes":   input.changes(),
		"oldRole":   string(before.Role),
		"newRole":   string(after.Role),
		"updatedBy": caller.actorEmail(),
	}
	s.audit(ctx, caller, audit.ActionUserUpdated, id, details, err)
	return after, err
}

func (s *Service) update(ctx context.Context, caller Caller, id string, input UpdateInput) (User, User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, User{}, err
	}
	before := user
	if input.IsActive != nil && !*input.IsActive && id == caller.actorID() {
		return before, before, ErrSelfAction
	}
	if input.Email != nil {
		user.Email = NormalizeEmail(*input.Email)
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Role != nil {
		role, ok := rbac.ParseRole(*input.Role)
		if !ok {
			return before, before, ErrInvalidRole
		}
		user.Role = role
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	if user.Email == "" || user.Name == "" {
		return before, before, ErrInvalidInput
	}
	user.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, user); err != nil {
		return before, before, err
	}
	return before, user, nil
}

func (in UpdateInput) changes() map[string]any {
	out := map[string]any{}
	if in.Email != nil {
		out["email"] = *in.Email
	}
	if in.Name != nil {
		out["name"] = *in.Name
	}
	if in.Role != nil {
		out["role"] = *in.Role
	}
	if in.IsActive != nil {
		out["isActive"] = *in.IsActive
	}
	return out
}

// AssignRole changes a user's role. The attempt is always audited.
func (s *Service) AssignRole(ctx context.Context, caller Caller, id, rawRole string) (User, error) {
	var (
		user    User
		oldRole rbac.Role
	)
	role, ok := rbac.ParseRole(rawRole)
	err := ErrInvalidRole
	if ok {
		user, err = s.repo.Get(ctx, id)
		if err == nil {
			oldRole = user.Role
			user.Role = role
			user.UpdatedAt = s.now()
			err = s.repo.Update(ctx, user)
		}
	}
	details := map[string]any{
		"oldRole":    string(oldRole),
		"newRole":    rawRole,
		"assignedBy": caller.actorEmail(),
	}
	s.audit(ctx, caller, audit.ActionRoleAssigned, id, details, err)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Delete removes an account other than the caller's. The attempt is always audited.
func (s *Service) Delete(ctx context.Context, caller Caller, id string) error {
	details := map[string]any{"deletedBy": caller.actorEmail()}
	err := s.delete(ctx, caller, id, details)
	s.audit(ctx, caller, audit.ActionUserDeleted, id, details, err)
	return err
}

func (s *Service) delete(ctx context.Context, caller Caller, id string, details map[string]any) error {
	if id == caller.actorID() {
		return ErrSelfAction
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	details["email"] = user.Email
	details["role"] = string(user.Role)
	return s.repo.Delete(ctx, id)
}

// UpdateProfile applies self-service edits to name and email.
func (s *Service) UpdateProfile(ctx context.Context, id string, input ProfileInput) (User, error) {
	_, user, err := s.update(ctx, Caller{}, id, UpdateInput{Email: input.Email, Name: input.Name})
	return user, err
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, caller Caller, input PasswordInput) error {
	err := s.changePassword(ctx, caller.actorID(), input)
	s.audit(ctx, caller, audit.ActionPasswordChanged, caller.actorID(), map[string]any{}, err)
	return err
}

func (s *Service) changePassword(ctx context.Context, id string, input PasswordInput) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)) != nil {
		return ErrWrongPassword
	}
	hash, err := s.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.SetPassword(ctx, id, hash, s.now())
}

// Stats returns account totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

// RecentLogins returns up to n most recent logins.
func (s *Service) RecentLogins(ctx context.Context, n int) ([]User, error) {
	if n <= 0 {
		n = 5
	}
	return s.repo.RecentLogins(ctx, n)
}

// Fetch resolves a user for the authorization gate.
func (s *Service) Fetch(ctx context.Context, id string) (rbac.Resource, error) {
	user, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, rbac.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) audit(ctx context.Context, caller Caller, action, resourceID string, details map[string]any, err error) {
	if s.auditor == nil {
		return
	}
	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailure
		details["error"] = err.Error()
		s.logger.Info("privileged mutation failed", slog.String("action", action), slog.String("resource_id", resourceID), slog.Any("error", err))
	}
	s.auditor.Record(ctx, audit.Entry{
		ActorID:    caller.actorID(),
		Action:     action,
		Resource:   string(rbac.KindUser),
		ResourceID: resourceID,
		Status:     status,
		Details:    details,
		IPAddress:  caller.IPAddress,
		UserAgent:  caller.UserAgent,
	})
}
