// Package cache provides aggregation.ViewStore backends.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"horizon/internal/domain/aggregation"
)

const defaultSize = 1024

// MemoryStore keeps views in a process-local LRU. Entries expire after ttl
// regardless of the caller's maxAge.
type MemoryStore struct {
	lru *expirable.LRU[string, *aggregation.Result]
}

var _ aggregation.ViewStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most size views.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = defaultSize
	}
	return &MemoryStore{lru: expirable.NewLRU[string, *aggregation.Result](size, nil, ttl)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*aggregation.Result, error) {
	r, ok := s.lru.Get(key)
	if !ok {
		return nil, aggregation.ErrCacheMiss
	}
	return r, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, result *aggregation.Result) error {
	s.lru.Add(key, result)
	return nil
}

// Len returns the number of stored views.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
