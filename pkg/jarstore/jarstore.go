// Package jarstore persists session cookie jars so a session can be resumed
// by another process or after a restart.
package jarstore

import (
	"context"
	"sync"
	"time"

	"github.com/milan604/sessionhttp/pkg/cookie"
	"github.com/milan604/sessionhttp/pkg/errors"
	sessionhttp "github.com/milan604/sessionhttp/pkg/http"
)

// ErrNotFound is returned by Load when no jar is stored under the key.
var ErrNotFound = errors.New("jarstore: jar not found")

// Store persists jar snapshots by key. A ttl of 0 means no expiration.
type Store interface {
	Save(ctx context.Context, key string, jar cookie.Jar, ttl time.Duration) error
	Load(ctx context.Context, key string) (cookie.Jar, error)
	Delete(ctx context.Context, key string) error
}

// Save stores a snapshot of the session's jar.
func Save(ctx context.Context, store Store, key string, s *sessionhttp.Session, ttl time.Duration) error {
	return store.Save(ctx, key, s.Jar(), ttl)
}

// Load returns the jar stored under key with expired cookies dropped.
func Load(ctx context.Context, store Store, key string) (cookie.Jar, error) {
	jar, err := store.Load(ctx, key)
	if err != nil {
		return cookie.Jar{}, err
	}
	return jar.Expire(time.Now()), nil
}

// Restore replaces the session's jar with the one stored under key.
func Restore(ctx context.Context, store Store, key string, s *sessionhttp.Session) error {
	jar, err := Load(ctx, store, key)
	if err != nil {
		return err
	}
	s.SetJar(jar)
	return nil
}

type memoryEntry struct {
	jar       cookie.Jar
	expiresAt time.Time
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key string, jar cookie.Jar, ttl time.Duration) error {
	e := memoryEntry{jar: jar}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key string) (cookie.Jar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return cookie.Jar{}, ErrNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return cookie.Jar{}, ErrNotFound
	}
	return e.jar, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
