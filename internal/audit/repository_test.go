package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCaptured = errors.New("captured")

type capturingDB struct {
	sql  string
	args []any
}

func (c *capturingDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql, c.args = sql, args
	return pgconn.CommandTag{}, errCaptured
}

func (c *capturingDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.sql, c.args = sql, args
	return nil, errCaptured
}

func (c *capturingDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.sql, c.args = sql, args
	return nil
}

func TestPGStoreQueryOrdersNewestFirst(t *testing.T) {
	db := &capturingDB{}
	store := NewPGStore(db)

	_, err := store.Query(context.Background(), Filters{Action: ActionPermissionDenied}, 40, 20)
	require.ErrorIs(t, err, errCaptured)

	assert.Contains(t, db.sql, "ORDER BY created_at DESC, id DESC")
	assert.Less(t, strings.Index(db.sql, "ORDER BY"), strings.Index(db.sql, "OFFSET $7 LIMIT $8"))
	require.Len(t, db.args, 8)
	assert.Equal(t, pgtype.Text{}, db.args[0])
	assert.Equal(t, pgtype.Text{String: ActionPermissionDenied, Valid: true}, db.args[1])
	assert.Equal(t, 40, db.args[6])
	assert.Equal(t, 20, db.args[7])
}

func TestPGStoreDeleteBeforeUsesCutoff(t *testing.T) {
	db := &capturingDB{}
	store := NewPGStore(db)
	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.DeleteBefore(context.Background(), cutoff)
	require.ErrorIs(t, err, errCaptured)

	assert.Equal(t, "DELETE FROM audit_logs WHERE created_at < $1", db.sql)
	assert.Equal(t, []any{cutoff}, db.args)
}
