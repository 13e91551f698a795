package storage

import "context"

// SessionSecretStore — хранилище сессионных секретов и login rate limit.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type SessionSecretStore interface {
	SetSessionSecret(ctx context.Context, sessionID, secret string) error
	GetSessionSecret(ctx context.Context, sessionID string) (string, error)
	DeleteSessionSecret(ctx context.Context, sessionID string) error
	CheckLoginRateLimit(ctx context.Context, email string) (allowed bool, err error)
	Close() error
}
