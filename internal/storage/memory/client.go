// Package memory — замена Redis для -dev режима: те же операции, но всё в
// памяти процесса и пропадает при рестарте.
package memory

import (
	"context"
	"sync"
	"time"
)

const (
	secretTTL     = 30 * 24 * time.Hour
	loginWindow   = 10 * time.Minute
	loginAttempts = 10
)

type secret struct {
	value     string
	expiresAt time.Time
}

type Client struct {
	mu       sync.Mutex
	secrets  map[string]secret
	attempts map[string][]time.Time
}

func New() *Client {
	return &Client{
		secrets:  make(map[string]secret),
		attempts: make(map[string][]time.Time),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetSessionSecret(_ context.Context, sessionID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[sessionID] = secret{value: value, expiresAt: time.Now().Add(secretTTL)}
	return nil
}

func (c *Client) GetSessionSecret(_ context.Context, sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.secrets[sessionID]
	if !ok {
		return "", nil
	}
	if time.Now().After(s.expiresAt) {
		delete(c.secrets, sessionID)
		return "", nil
	}
	return s.value, nil
}

func (c *Client) DeleteSessionSecret(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, sessionID)
	return nil
}

func (c *Client) CheckLoginRateLimit(_ context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	recent := c.attempts[email]
	for len(recent) > 0 && now.Sub(recent[0]) >= loginWindow {
		recent = recent[1:]
	}
	if len(recent) >= loginAttempts {
		c.attempts[email] = recent
		return false, nil
	}
	c.attempts[email] = append(recent, now)
	return true, nil
}
