package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttl     map[string]time.Duration
	failGet error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	b, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return b, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttl[key] = ttl
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestReadThrough_MissThenHit(t *testing.T) {
	store := newMemStore()
	builds := 0
	build := func(context.Context) ([]string, error) {
		builds++
		return []string{"a", "b"}, nil
	}

	v, err := ReadThrough(context.Background(), store, "k", time.Hour, build)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
	assert.Equal(t, time.Hour, store.ttl["k"])

	v, err = ReadThrough(context.Background(), store, "k", time.Hour, build)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
	assert.Equal(t, 1, builds)

	require.NoError(t, store.Del(context.Background(), "k"))
	_, err = ReadThrough(context.Background(), store, "k", time.Hour, build)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
}

func TestReadThrough_StoreFailureDegradesToBuild(t *testing.T) {
	store := newMemStore()
	store.failGet = errors.New("connection refused")

	v, err := ReadThrough(context.Background(), store, "k", time.Minute, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestReadThrough_CorruptEntryRebuilt(t *testing.T) {
	store := newMemStore()
	store.data["k"] = []byte("{not json")

	v, err := ReadThrough(context.Background(), store, "k", time.Minute, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "7", string(store.data["k"]))
}

func TestReadThrough_BuildError(t *testing.T) {
	boom := errors.New("db down")
	_, err := ReadThrough(context.Background(), newMemStore(), "k", time.Minute, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestReadThrough_UnencodableValueLoggedNotCached(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	store := newMemStore()
	build := func(context.Context) (map[string]any, error) {
		return map[string]any{"bad": make(chan int)}, nil
	}
	got, err := ReadThrough(context.Background(), store, "nav:bad", time.Minute, build)
	require.NoError(t, err)
	assert.Contains(t, got, "bad")
	assert.Empty(t, store.data)

	entries := logs.FilterMessage("cache encode failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "nav:bad", entries[0].ContextMap()["key"])
}
