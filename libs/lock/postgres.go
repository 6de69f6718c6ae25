package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/trainingplanner/libs/db"
)

// Postgres implements Locker with session advisory locks. The connection
// that took the lock is held until Release, since the lock belongs to the
// session. ttl is ignored: the lock lasts as long as the session.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (l *Postgres) TryLock(ctx context.Context, name string, _ time.Duration) (Release, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock %s: %w", name, err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", name, err)
	}
	if !locked {
		conn.Release()
		return nil, ErrNotAcquired
	}
	return func(ctx context.Context) error {
		defer conn.Release()
		_, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name)
		return err
	}, nil
}
