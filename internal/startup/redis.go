package startup

import (
	"context"
	"time"

	redisstorage "github.com/rchat/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis; New сам делает ping.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration) *redisstorage.Client {
	var client *redisstorage.Client
	connectWithRetry("redis", maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client
}
