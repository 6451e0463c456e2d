package lock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Advisory is a Locker backed by Postgres session advisory locks, so several
// server replicas serialise on the same key. The connection that took the
// lock is held until unlock.
type Advisory struct {
	pool *pgxpool.Pool
}

func NewAdvisory(pool *pgxpool.Pool) *Advisory {
	return &Advisory{pool: pool}
}

func (a *Advisory) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return func() {
		// The caller's context may already be done; unlocking must still happen.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
