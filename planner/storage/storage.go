package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// ErrKeyNotFound is returned by Get when nothing is stored under the key
var ErrKeyNotFound = errors.New("key not found")

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// KVStore is the best-effort local store for named JSON blobs, grouped in buckets.
// Write and read failures wrap engine.ErrPersistenceUnavailable.
type KVStore interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", engine.ErrPersistenceUnavailable, op, err)
}

// MemoryStore keeps blobs in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("put", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.values[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.values[bucket] = b
	}
	b[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[bucket][key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values[bucket], key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
