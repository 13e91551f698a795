package startup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDBWithRetry открывает пул к Postgres и проверяет его ping-ом.
func ConnectDBWithRetry(poolCfg *pgxpool.Config, maxWait time.Duration) *pgxpool.Pool {
	var pool *pgxpool.Pool
	connectWithRetry("postgres", maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	return pool
}
