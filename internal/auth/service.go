package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
	"github.com/odyssey-erp/odyssey-cms/internal/users"
)

// Accounts is the user store as seen by authentication.
type Accounts interface {
	Register(ctx context.Context, email, name, password string) (users.User, error)
	FindByEmail(ctx context.Context, email string) (users.User, error)
	Get(ctx context.Context, id string) (users.User, error)
	TouchLogin(ctx context.Context, id string) error
}

// Auditor receives auth events.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service wraps authentication business rules.
type Service struct {
	accounts Accounts
	repo     Repository
	auditor  Auditor
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(accounts Accounts, repo Repository, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{accounts: accounts, repo: repo, auditor: auditor, logger: logger, now: time.Now}
}

// Register creates a user-role account.
func (s *Service) Register(ctx context.Context, input RegisterInput, client ClientInfo) (users.User, error) {
	user, err := s.accounts.Register(ctx, input.Email, input.Name, input.Password)
	details := map[string]any{"email": users.NormalizeEmail(input.Email)}
	if input.Role != "" && input.Role != string(rbac.RoleUser) {
		details["requestedRole"] = input.Role
	}
	s.record(ctx, audit.ActionUserRegistered, user.ID, user.ID, details, client, err)
	return user, err
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string, client ClientInfo) (users.User, error) {
	user, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err != nil && !errors.Is(err, users.ErrNotFound):
		return users.User{}, err
	case err != nil:
		s.loginFailed(ctx, "", email, "unknown email", client)
		return users.User{}, shared.ErrInvalidCredentials
	case !user.IsActive:
		s.loginFailed(ctx, user.ID, email, "inactive account", client)
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.loginFailed(ctx, user.ID, email, "wrong password", client)
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := s.accounts.TouchLogin(ctx, user.ID); err != nil {
		s.logger.Warn("touch login", slog.Any("error", err))
	}
	s.record(ctx, audit.ActionUserLogin, user.ID, user.ID, map[string]any{"email": user.Email}, client, nil)
	return user, nil
}

func (s *Service) loginFailed(ctx context.Context, userID, email, reason string, client ClientInfo) {
	details := map[string]any{"email": users.NormalizeEmail(email), "reason": reason}
	s.record(ctx, audit.ActionUserLoginFailed, userID, userID, details, client, shared.ErrInvalidCredentials)
}

// ResolveActor maps a session user id to the actor used by the gate. Missing
// or inactive accounts resolve to nil.
func (s *Service) ResolveActor(ctx context.Context, userID string) (*rbac.Actor, error) {
	if userID == "" {
		return nil, nil
	}
	user, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}
	return user.Actor(), nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, userID string, ttl time.Duration, client ClientInfo) error {
	if s.repo == nil {
		return nil
	}
	now := s.now()
	return s.repo.CreateSession(ctx, LoginSession{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.DeleteSession(ctx, id)
}

func (s *Service) record(ctx context.Context, action, actorID, resourceID string, details map[string]any, client ClientInfo, err error) {
	if s.auditor == nil {
		return
	}
	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailure
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			details["error"] = err.Error()
		}
	}
	s.auditor.Record(ctx, audit.Entry{
		ActorID:    actorID,
		Action:     action,
		Resource:   string(rbac.KindUser),
		ResourceID: resourceID,
		Status:     status,
		Details:    details,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
	})
}
