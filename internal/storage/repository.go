package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Queryable is satisfied by *sql.DB and *sql.Tx, so statements can run
// inside or outside a transaction.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BaseRepository holds what every repository needs: the connection and a clock.
type BaseRepository struct {
	db  *DB
	now func() time.Time
}

// NewBaseRepository creates a base repository on db using the wall clock.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db, now: time.Now}
}

// DB returns the connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the repository clock in UTC. Timestamps are stored in UTC.
func (r *BaseRepository) Now() time.Time {
	return r.now().UTC()
}

// GenerateID returns a new draft id.
func GenerateID() string {
	return uuid.NewString()
}
