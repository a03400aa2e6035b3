// Package postgres implements the persistence contracts over a pgx
// connection pool. Nested structures are stored as JSONB documents; scalar
// columns mirror only the fields queries filter or order on. Every call
// runs under its own timeout so a stuck connection cannot wedge the
// engine's polling loops.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codehive/swarmd/pkg/store"
)

// opTimeout bounds every store call.
const opTimeout = 10 * time.Second

// Store implements store.Store over PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a postgres-backed store over an existing pool. The schema
// must already be migrated (database.Connect does that).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}
