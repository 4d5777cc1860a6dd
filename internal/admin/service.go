package admin

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/users"
)

const (
	recentLoginCount = 5
	topActionCount   = 5
)

// UserStats exposes account aggregates.
type UserStats interface {
	Stats(ctx context.Context) (users.Stats, error)
	RecentLogins(ctx context.Context, n int) ([]users.User, error)
}

// AuditStats exposes audit aggregates.
type AuditStats interface {
	TopActions(ctx context.Context, n int) ([]audit.ActionCount, error)
}

// RecentLogin is a trimmed user row for the dashboard.
type RecentLogin struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	LastLoginAt string `json:"lastLoginAt"`
}

// Stats is the admin statistics payload.
type Stats struct {
	Users        users.Stats         `json:"users"`
	RecentLogins []RecentLogin       `json:"recentLogins"`
	TopActions   []audit.ActionCount `json:"topActions"`
}

// Service assembles admin statistics.
type Service struct {
	users UserStats
	audit AuditStats
}

// NewService builds Service instance.
func NewService(users UserStats, audit AuditStats) *Service {
	return &Service{users: users, audit: audit}
}

// Stats loads user totals, recent logins and top audit actions concurrently.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		out    Stats
		recent []users.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.users.Stats(gctx)
		if err != nil {
			return fmt.Errorf("user stats: %w", err)
		}
		out.Users = stats
		return nil
	})
	g.Go(func() error {
		rows, err := s.users.RecentLogins(gctx, recentLoginCount)
		if err != nil {
			return fmt.Errorf("recent logins: %w", err)
		}
		recent = rows
		return nil
	})
	g.Go(func() error {
		top, err := s.audit.TopActions(gctx, topActionCount)
		if err != nil {
			return fmt.Errorf("top actions: %w", err)
		}
		out.TopActions = top
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	out.RecentLogins = make([]RecentLogin, 0, len(recent))
	for _, u := range recent {
		row := RecentLogin{ID: u.ID, Email: u.Email, Role: string(u.Role)}
		if u.LastLoginAt != nil {
			row.LastLoginAt = u.LastLoginAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		out.RecentLogins = append(out.RecentLogins, row)
	}
	if out.TopActions == nil {
		out.TopActions = []audit.ActionCount{}
	}
	return out, nil
}
