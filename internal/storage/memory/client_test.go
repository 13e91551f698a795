package memory

import (
	"context"
	"testing"
)

func TestSessionSecretLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New()

	if err := c.SetSessionSecret(ctx, "s1", "secret"); err != nil {
		t.Fatalf("SetSessionSecret: %v", err)
	}
	got, err := c.GetSessionSecret(ctx, "s1")
	if err != nil || got != "secret" {
		t.Fatalf("GetSessionSecret = %q, %v", got, err)
	}

	if err := c.DeleteSessionSecret(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSessionSecret: %v", err)
	}
	got, err = c.GetSessionSecret(ctx, "s1")
	if err != nil || got != "" {
		t.Errorf("after delete: GetSessionSecret = %q, %v, want empty", got, err)
	}

	// Unknown session is not an error, just absent.
	got, err = c.GetSessionSecret(ctx, "ghost")
	if err != nil || got != "" {
		t.Errorf("unknown session: GetSessionSecret = %q, %v", got, err)
	}
}

func TestCheckLoginRateLimit(t *testing.T) {
	ctx := context.Background()
	c := New()

	for i := 0; i < loginAttempts; i++ {
		ok, err := c.CheckLoginRateLimit(ctx, "a@test")
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := c.CheckLoginRateLimit(ctx, "a@test")
	if err != nil || ok {
		t.Errorf("over-limit attempt: ok=%v err=%v, want rejection", ok, err)
	}

	// Emails are limited independently.
	ok, err = c.CheckLoginRateLimit(ctx, "b@test")
	if err != nil || !ok {
		t.Errorf("other email: ok=%v err=%v, want allowed", ok, err)
	}
}
