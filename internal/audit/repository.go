package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgxpool.Pool used by PGStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists audit entries in audit_logs.
type PGStore struct {
	db DBTX
}

// NewPGStore constructs a PostgreSQL backed Store.
func NewPGStore(db DBTX) *PGStore {
	return &PGStore{db: db}
}

const insertEntry = `INSERT INTO audit_logs (id, actor_id, action, resource, resource_id, status, details, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Append inserts entry.
func (s *PGStore) Append(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, insertEntry,
		entry.ID,
		optionalText(entry.ActorID),
		entry.Action,
		entry.Resource,
		optionalText(entry.ResourceID),
		string(entry.Status),
		details,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	)
	return err
}

const filterClause = `
WHERE ($1::text IS NULL OR actor_id = $1)
  AND ($2::text IS NULL OR action = $2)
  AND ($3::text IS NULL OR resource = $3)
  AND ($4::text IS NULL OR status = $4)
  AND ($5::timestamptz IS NULL OR created_at >= $5)
  AND ($6::timestamptz IS NULL OR created_at <= $6)`

const queryEntries = `SELECT id, actor_id, action, resource, resource_id, status, details, ip_address, user_agent, created_at
FROM audit_logs` + filterClause + `
ORDER BY created_at DESC, id DESC
OFFSET $7 LIMIT $8`

const countEntries = `SELECT COUNT(*) FROM audit_logs` + filterClause

// Query returns filtered entries newest first.
func (s *PGStore) Query(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	args := append(filterArgs(filters), offset, limit)
	rows, err := s.db.Query(ctx, queryEntries, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			actorID    pgtype.Text
			resourceID pgtype.Text
			status     string
			details    []byte
		)
		if err := rows.Scan(&entry.ID, &actorID, &entry.Action, &entry.Resource, &resourceID, &status, &details, &entry.IPAddress, &entry.UserAgent, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ActorID = actorID.String
		entry.ResourceID = resourceID.String
		entry.Status = Status(status)
		entry.Details = map[string]any{}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of entries matching filters.
func (s *PGStore) Count(ctx context.Context, filters Filters) (int, error) {
	var total int
	if err := s.db.QueryRow(ctx, countEntries, filterArgs(filters)...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CountByAction groups entries by action, most frequent first.
func (s *PGStore) CountByAction(ctx context.Context, limit int) ([]ActionCount, error) {
	rows, err := s.db.Query(ctx, `SELECT action, COUNT(*) AS n FROM audit_logs GROUP BY action ORDER BY n DESC, action LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts []ActionCount
	for rows.Next() {
		var c ActionCount
		if err := rows.Scan(&c.Action, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DeleteBefore removes entries older than cutoff.
func (s *PGStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func filterArgs(f Filters) []any {
	return []any{
		optionalText(f.ActorID),
		optionalText(f.Action),
		optionalText(f.Resource),
		optionalText(string(f.Status)),
		toPgTime(f.From),
		toPgTime(f.To),
	}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var _ Store = (*PGStore)(nil)
