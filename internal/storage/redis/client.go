// Package redis — хранилище сессионных секретов и login rate limit поверх
// Redis. Ключи с TTL, состояние переживает рестарт API.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	secretKeyPrefix = "session_secret:"
	loginKeyPrefix  = "login_limit:"

	secretTTL = 30 * 24 * time.Hour
	// 10 попыток логина за 10 минут на email.
	loginWindow   = 10 * time.Minute
	loginAttempts = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	return c.cli.Set(ctx, secretKeyPrefix+sessionID, secret, secretTTL).Err()
}

// GetSessionSecret возвращает пустую строку для неизвестной сессии: это не
// ошибка, а обычный unauthorized.
func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	val, err := c.cli.Get(ctx, secretKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// DeleteSessionSecret удаляет секрет при logout — подписанные им запросы
// сразу перестают проходить.
func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, secretKeyPrefix+sessionID).Err()
}

// CheckLoginRateLimit считает попытки логина по email через INCR с TTL на
// первом инкременте.
func (c *Client) CheckLoginRateLimit(ctx context.Context, email string) (bool, error) {
	key := loginKeyPrefix + email
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, loginWindow)
	}
	return n <= loginAttempts, nil
}
