package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBackend keeps the encoded snapshot in memory. Used by tests and by
// the "memory" store driver.
type MemoryBackend struct {
	mu    sync.Mutex
	data  []byte
	saves int
	fail  error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(ctx context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return NewSnapshot(), nil
	}
	return decodeSnapshot(b.data)
}

func (b *MemoryBackend) Save(ctx context.Context, snap *Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	data, err := snapshotJSON(snap)
	if err != nil {
		return err
	}
	b.data = data
	b.saves++
	return nil
}

// FailWith makes every following Save return err. A nil err clears it.
func (b *MemoryBackend) FailWith(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

// Saves returns how many snapshots were persisted.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func snapshotJSON(snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}
