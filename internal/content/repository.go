package content

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgxpool.Pool used by Repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db DBTX
}

// NewRepository constructs a repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const contentColumns = `id, title, body, created_by, visibility, created_at, updated_at`

const listFilter = `
WHERE ($1::text IS NULL OR visibility = $1)
  AND ($2::text IS NULL OR created_by = $2)`

func listArgs(f ListFilters) []any {
	return []any{optionalText(string(f.Visibility)), optionalText(f.CreatedBy)}
}

// List returns items matching filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters, offset, limit int) ([]Content, error) {
	rows, err := r.db.Query(ctx, `SELECT `+contentColumns+` FROM content`+listFilter+`
ORDER BY created_at DESC, id DESC
OFFSET $3 LIMIT $4`, append(listArgs(filters), offset, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Content
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Count returns the number of items matching filters.
func (r *Repository) Count(ctx context.Context, filters ListFilters) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM content`+listFilter, listArgs(filters)...).Scan(&total)
	return total, err
}

// Get fetches an item by id.
func (r *Repository) Get(ctx context.Context, id string) (Content, error) {
	item, err := scanContent(r.db.QueryRow(ctx, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Content{}, ErrNotFound
	}
	return item, err
}

// Create inserts item.
func (r *Repository) Create(ctx context.Context, item Content) error {
	_, err := r.db.Exec(ctx, `INSERT INTO content (`+contentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.Title, item.Body, item.CreatedBy, string(item.Visibility), item.CreatedAt, item.UpdatedAt)
	return err
}

// Update persists title, body and visibility.
func (r *Repository) Update(ctx context.Context, item Content) error {
	tag, err := r.db.Exec(ctx, `UPDATE content SET title = $2, body = $3, visibility = $4, updated_at = $5 WHERE id = $1`,
		item.ID, item.Title, item.Body, string(item.Visibility), item.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an item.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanContent(row pgx.Row) (Content, error) {
	var (
		item       Content
		visibility string
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Body, &item.CreatedBy, &visibility, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Content{}, err
	}
	item.Visibility = Visibility(visibility)
	return item, nil
}

func optionalText(value string) pgtype.Text {
	value = strings.TrimSpace(value)
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
