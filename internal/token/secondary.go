package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-identity/pkg/utilities"
)

// ErrUnknownHandle is returned when a secondary handle does not resolve.
var ErrUnknownHandle = errors.New("token: unknown secondary handle")

// SecondaryIDs exchanges raw access tokens for opaque handles. Customer and
// driver clients only ever see the handle.
type SecondaryIDs interface {
	Exchange(ctx context.Context, raw string) (string, error)
	Resolve(ctx context.Context, handle string) (string, error)
	Revoke(ctx context.Context, handle string) error
}

// RedisSecondaryIDs keeps handle -> raw token mappings in Redis with a TTL.
type RedisSecondaryIDs struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisSecondaryIDs(client *redis.Client, ttl, timeout time.Duration) *RedisSecondaryIDs {
	return &RedisSecondaryIDs{client: client, prefix: "secid:", ttl: ttl, timeout: timeout}
}

func (s *RedisSecondaryIDs) key(handle string) string {
	return s.prefix + handle
}

func (s *RedisSecondaryIDs) Exchange(ctx context.Context, raw string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	handle := utilities.NewKSUID()
	ok, err := s.client.SetNX(ctx, s.key(handle), raw, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("secid: store handle: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("secid: handle collision")
	}
	return handle, nil
}

func (s *RedisSecondaryIDs) Resolve(ctx context.Context, handle string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key(handle)).Result()
	if err == redis.Nil {
		return "", ErrUnknownHandle
	}
	if err != nil {
		return "", fmt.Errorf("secid: resolve handle: %w", err)
	}
	return raw, nil
}

func (s *RedisSecondaryIDs) Revoke(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(ctx, s.key(handle)).Err()
}

// MemorySecondaryIDs is a process-local SecondaryIDs for single instance
// deployments without Redis.
type MemorySecondaryIDs struct {
	mu      sync.RWMutex
	handles map[string]string
}

func NewMemorySecondaryIDs() *MemorySecondaryIDs {
	return &MemorySecondaryIDs{handles: make(map[string]string)}
}

func (m *MemorySecondaryIDs) Exchange(_ context.Context, raw string) (string, error) {
	handle := utilities.NewKSUID()
	m.mu.Lock()
	m.handles[handle] = raw
	m.mu.Unlock()
	return handle, nil
}

func (m *MemorySecondaryIDs) Resolve(_ context.Context, handle string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.handles[handle]
	if !ok {
		return "", ErrUnknownHandle
	}
	return raw, nil
}

func (m *MemorySecondaryIDs) Revoke(_ context.Context, handle string) error {
	m.mu.Lock()
	delete(m.handles, handle)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live handles.
func (m *MemorySecondaryIDs) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}
