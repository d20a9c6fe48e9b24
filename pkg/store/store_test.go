package store

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-che/debugd/pkg/config"
)

// testStore runs the behavior every backend must share.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Load(ctx, "breakpoints/default")
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	require.NoError(t, s.Save(ctx, "breakpoints/default", []byte("one")))
	require.NoError(t, s.Save(ctx, "breakpoints/other", []byte("two")))
	require.NoError(t, s.Save(ctx, "configurations/sim", []byte("three")))

	v, err := s.Load(ctx, "breakpoints/default")
	require.NoError(t, err)
	require.Equal(t, "one", string(v))

	require.NoError(t, s.Save(ctx, "breakpoints/default", []byte("uno")))
	v, err = s.Load(ctx, "breakpoints/default")
	require.NoError(t, err)
	require.Equal(t, "uno", string(v))

	keys, err := s.List(ctx, "breakpoints/")
	require.NoError(t, err)
	require.Equal(t, []string{"breakpoints/default", "breakpoints/other"}, keys)

	keys, err = s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, keys, 3)

	require.NoError(t, s.Delete(ctx, "breakpoints/default"))
	require.NoError(t, s.Delete(ctx, "breakpoints/default"))
	_, err = s.Load(ctx, "breakpoints/default")
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	require.Error(t, s.Save(ctx, "../escape", []byte("x")))
	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	testStore(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(RedisConfig{Addr: mr.Addr(), Prefix: "test:"})
	testStore(t, s)
	require.True(t, mr.Exists("test:breakpoints/other"))
}

func TestRedisStorePrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewRedisStore(RedisConfig{Addr: mr.Addr(), Prefix: "a:"})
	b := NewRedisStore(RedisConfig{Addr: mr.Addr(), Prefix: "b:"})
	defer a.Close()
	defer b.Close()
	ctx := context.Background()
	require.NoError(t, a.Save(ctx, "k", []byte("1")))
	_, err := b.Load(ctx, "k")
	require.True(t, errors.Is(err, ErrNotFound))
	keys, err := b.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestHTTPStore(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewMemoryStore()))
	defer srv.Close()
	s, err := NewHTTPStore(srv.URL, srv.Client())
	require.NoError(t, err)
	testStore(t, s)
}

func TestHTTPStoreBadURL(t *testing.T) {
	_, err := NewHTTPStore("ftp://example.com", nil)
	require.Error(t, err)
}

type countingStore struct {
	Store
	loads int
}

func (s *countingStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.loads++
	return s.Store.Load(ctx, key)
}

func TestCachedStore(t *testing.T) {
	backend := &countingStore{Store: NewMemoryStore()}
	s, err := NewCachedStore(backend, 2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backend.Store.Save(ctx, "a", []byte("1")))
	for i := 0; i < 3; i++ {
		v, err := s.Load(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, "1", string(v))
	}
	require.Equal(t, 1, backend.loads)

	require.NoError(t, s.Save(ctx, "a", []byte("2")))
	v, err := s.Load(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "2", string(v))
	require.Equal(t, 1, backend.loads)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Load(ctx, "a")
	require.True(t, errors.Is(err, ErrNotFound))

	testStore(t, s)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	for _, sc := range []config.StoreConfig{
		{Backend: "memory"},
		{Backend: "file", Path: t.TempDir()},
		{Backend: "redis", Addr: mr.Addr(), CacheSize: 8},
	} {
		s, err := Open(&config.Config{Store: sc})
		require.NoError(t, err, sc.Backend)
		testStore(t, s)
	}
	_, err := Open(&config.Config{Store: config.StoreConfig{Backend: "floppy"}})
	require.Error(t, err)
}

func TestConfigurations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.Error(t, SaveConfiguration(ctx, s, &DebugConfiguration{Name: "bad name", Type: "sim", Script: "x.yml"}))
	require.Error(t, SaveConfiguration(ctx, s, &DebugConfiguration{Name: "x", Type: "dap"}))

	require.NoError(t, SaveConfiguration(ctx, s, &DebugConfiguration{Name: "local", Type: "sim", Script: "loop.yml"}))
	require.NoError(t, SaveConfiguration(ctx, s, &DebugConfiguration{
		Name: "adapter", Type: "dap", Address: "127.0.0.1:4711",
		Properties: map[string]string{"program": "./main"},
	}))

	c, err := LoadConfiguration(ctx, s, "adapter")
	require.NoError(t, err)
	require.Equal(t, "./main", c.Properties["program"])

	all, err := ListConfigurations(ctx, s)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "adapter", all[0].Name)
	require.Equal(t, "local", all[1].Name)

	require.NoError(t, DeleteConfiguration(ctx, s, "adapter"))
	_, err = LoadConfiguration(ctx, s, "adapter")
	require.ErrorIs(t, err, ErrNotFound)
}
