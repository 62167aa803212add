package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"careerchat/internal/redis"
)

// Denylist remembers revoked token ids until their expiry.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

// NewDenylist returns a redis-backed denylist, or an in-memory one without redis.
func NewDenylist(client *redis.Client) Denylist {
	if client == nil || client.Raw() == nil {
		return NewMemoryDenylist()
	}
	return &redisDenylist{client: client}
}

type redisDenylist struct {
	client *redis.Client
}

func denyKey(jti string) string {
	return "auth:revoked:" + jti
}

func (d *redisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denyKey(jti), 1, ttl)
}

func (d *redisDenylist) Revoked(ctx context.Context, jti string) (bool, error) {
	ok, err := d.client.Exists(ctx, denyKey(jti))
	if errors.Is(err, redis.ErrCacheMiss) {
		return false, nil
	}
	return ok, err
}

// MemoryDenylist is a process-local Denylist.
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, exp := range d.entries {
		if now.After(exp) {
			delete(d.entries, id)
		}
	}
	d.entries[jti] = until
	return nil
}

func (d *MemoryDenylist) Revoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if d.now().After(exp) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}
