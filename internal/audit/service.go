package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-cms/internal/shared"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store is the persistence behind the audit trail. It only appends and
// queries; deletion exists solely for the retention job.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
	Count(ctx context.Context, filters Filters) (int, error)
	CountByAction(ctx context.Context, limit int) ([]ActionCount, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Service records and queries audit entries.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService constructs an audit Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Record appends entry to the trail. It is best-effort: failures are logged
// and never reach the caller.
func (s *Service) Record(ctx context.Context, entry Entry) {
	if s == nil {
		return
	}
	if s.store == nil {
		s.logger.Warn("audit store not configured", slog.String("action", entry.Action))
		return
	}
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.Action == "" {
		s.logger.Error("audit entry without action dropped")
		return
	}
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	if strings.TrimSpace(entry.IPAddress) == "" {
		entry.IPAddress = unknownMeta
	}
	if strings.TrimSpace(entry.UserAgent) == "" {
		entry.UserAgent = unknownMeta
	}
	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.Error("audit record",
			slog.String("action", entry.Action),
			slog.String("actor_id", entry.ActorID),
			slog.Any("error", err),
		)
	}
}

// Query returns one page of entries, newest first, with the total count.
func (s *Service) Query(ctx context.Context, filters Filters) (Page, error) {
	if s == nil || s.store == nil {
		return Page{}, fmt.Errorf("audit: store not configured")
	}
	filters, err := normalizeFilters(filters)
	if err != nil {
		return Page{}, err
	}
	total, err := s.store.Count(ctx, filters)
	if err != nil {
		return Page{}, fmt.Errorf("audit: count: %w", err)
	}
	paging := shared.NewPagination(filters.Page, filters.Limit, total)
	entries, err := s.store.Query(ctx, filters, paging.Offset(), paging.PerPage)
	if err != nil {
		return Page{}, fmt.Errorf("audit: query: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Entries: entries, Pagination: paging}, nil
}

// TopActions returns the n most frequent action tags.
func (s *Service) TopActions(ctx context.Context, n int) ([]ActionCount, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	if n <= 0 {
		n = 10
	}
	return s.store.CountByAction(ctx, n)
}

// Prune removes entries created before cutoff. Only the retention job calls it.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("audit: store not configured")
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("%w: retention cutoff required", ErrInvalidFilter)
	}
	return s.store.DeleteBefore(ctx, cutoff.UTC())
}

func normalizeFilters(f Filters) (Filters, error) {
	f.ActorID = strings.TrimSpace(f.ActorID)
	f.Action = strings.TrimSpace(f.Action)
	f.Resource = strings.TrimSpace(f.Resource)
	switch f.Status {
	case "", StatusSuccess, StatusFailure:
	default:
		return Filters{}, fmt.Errorf("%w: status %q", ErrInvalidFilter, f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return Filters{}, fmt.Errorf("%w: start date after end date", ErrInvalidFilter)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f, nil
}
