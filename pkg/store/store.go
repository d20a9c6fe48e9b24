// Package store persists breakpoints and debug configurations as opaque
// values under string keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eclipse-che/debugd/pkg/config"
)

// ErrNotFound is returned by Load when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is a key-value persistence backend. Every call either succeeds or
// fails as a whole, there are no transactions spanning calls.
type Store interface {
	Save(ctx context.Context, key string, value []byte) error
	// Load returns ErrNotFound if key does not exist.
	Load(ctx context.Context, key string) ([]byte, error)
	// Delete removes key, deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open returns the backend selected by cfg.
func Open(cfg *config.Config) (Store, error) {
	var (
		s   Store
		err error
	)
	sc := cfg.Store
	switch sc.Backend {
	case "", "file":
		var dir string
		dir, err = cfg.StorePath()
		if err == nil {
			s, err = NewFileStore(dir)
		}
	case "memory":
		s = NewMemoryStore()
	case "redis":
		s = NewRedisStore(RedisConfig{Addr: sc.Addr, DB: sc.DB, Prefix: sc.Prefix})
	case "http":
		s, err = NewHTTPStore(sc.Addr, nil)
	default:
		err = fmt.Errorf("unknown store backend %q", sc.Backend)
	}
	if err != nil {
		return nil, err
	}
	if sc.CacheSize > 0 {
		return NewCachedStore(s, sc.CacheSize)
	}
	return s, nil
}

// MemoryStore keeps values in memory.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error { return nil }

func checkKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	return nil
}
