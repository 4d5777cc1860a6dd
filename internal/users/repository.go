package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
)

const uniqueViolation = "23505"

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

const userColumns = `id, email, name, password_hash, role, is_active, created_by, last_login_at, created_at, updated_at`

const listFilter = `
WHERE ($1::text IS NULL OR role = $1)
  AND ($2::boolean IS NULL OR is_active = $2)
  AND ($3::text IS NULL OR name ILIKE '%' || $3 || '%' OR email ILIKE '%' || $3 || '%')`

func listArgs(f ListFilters) []any {
	var active pgtype.Bool
	if f.IsActive != nil {
		active = pgtype.Bool{Bool: *f.IsActive, Valid: true}
	}
	return []any{optionalText(string(f.Role)), active, optionalText(f.Search)}
}

// List returns users matching filters, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters, offset, limit int) ([]User, error) {
	args := append(listArgs(filters), offset, limit)
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users`+listFilter+`
ORDER BY created_at DESC, id DESC
OFFSET $4 LIMIT $5`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// Count returns the number of users matching filters.
func (r *Repository) Count(ctx context.Context, filters ListFilters) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+listFilter, listArgs(filters)...).Scan(&total)
	return total, err
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail fetches a user by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *Repository) getOne(ctx context.Context, sql string, arg string) (User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// Create inserts user.
func (r *Repository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $8)`,
		user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role), user.IsActive,
		optionalText(user.CreatedBy), user.CreatedAt)
	return mapWriteError(err)
}

// Update persists email, name, role and active flag.
func (r *Repository) Update(ctx context.Context, user User) error {
	tag, err := r.db.Exec(ctx, `UPDATE users
SET email = $2, name = $3, role = $4, is_active = $5, updated_at = $6
WHERE id = $1`, user.ID, user.Email, user.Name, string(user.Role), user.IsActive, user.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword replaces the password hash.
func (r *Repository) SetPassword(ctx context.Context, id, hash string, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
}

// TouchLogin records a successful login.
func (r *Repository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
}

// Delete removes the user.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (r *Repository) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates totals and the role distribution.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM users`).Scan(&stats.Total, &stats.Active); err != nil {
		return Stats{}, err
	}
	stats.Inactive = stats.Total - stats.Active
	rows, err := r.db.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role ORDER BY role`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	stats.ByRole = []RoleCount{}
	for rows.Next() {
		var rc RoleCount
		var role string
		if err := rows.Scan(&role, &rc.Count); err != nil {
			return Stats{}, err
		}
		rc.Role = rbac.Role(role)
		stats.ByRole = append(stats.ByRole, rc)
	}
	return stats, rows.Err()
}

// RecentLogins returns the users who logged in most recently.
func (r *Repository) RecentLogins(ctx context.Context, limit int) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users
WHERE last_login_at IS NOT NULL
ORDER BY last_login_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user      User
		role      string
		createdBy pgtype.Text
		lastLogin pgtype.Timestamptz
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &role, &user.IsActive,
		&createdBy, &lastLogin, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	user.Role = rbac.Role(role)
	user.CreatedBy = createdBy.String
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return user, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, pgErr.ConstraintName)
	}
	return err
}

func optionalText(value string) pgtype.Text {
	value = strings.TrimSpace(value)
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
