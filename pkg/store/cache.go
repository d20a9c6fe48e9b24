package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
)

// CachedStore puts an LRU read cache in front of another Store. Writes go
// through to the backend before the cache is updated.
type CachedStore struct {
	backend Store
	cache   *lru.Cache
}

// NewCachedStore wraps backend with a cache holding up to size values.
func NewCachedStore(backend Store, size int) (*CachedStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{backend: backend, cache: cache}, nil
}

func (s *CachedStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.backend.Save(ctx, key, value); err != nil {
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, append([]byte(nil), value...))
	return nil
}

func (s *CachedStore) Load(ctx context.Context, key string) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	v, err := s.backend.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, append([]byte(nil), v...))
	return v, nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	return s.backend.Delete(ctx, key)
}

func (s *CachedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.backend.Close()
}
