package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStorage keeps the serialized queue in memory. It round-trips through
// JSON so tests observe the same encoding the SQLite store uses.
type MemoryStorage struct {
	mu    sync.Mutex
	raw   []byte
	saves int
	err   error
}

// NewMemoryStorage constructs an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// FailSaves makes SaveQueue return err until cleared with nil.
func (s *MemoryStorage) FailSaves(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Saves reports how many successful saves have happened.
func (s *MemoryStorage) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStorage) LoadQueue(context.Context) ([]OfflineAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.raw) == 0 {
		return nil, nil
	}
	var out []OfflineAction
	if err := json.Unmarshal(s.raw, &out); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	return out, nil
}

func (s *MemoryStorage) SaveQueue(_ context.Context, actions []OfflineAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if actions == nil {
		actions = []OfflineAction{}
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	s.raw = raw
	s.saves++
	return nil
}
