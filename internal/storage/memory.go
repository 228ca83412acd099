package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/sentimentiq/backend/internal/domain"
)

// MemoryArea is a thread-safe in-memory storage area.
// Values are stored as JSON so readers never share memory with writers.
type MemoryArea struct {
	data  map[string][]byte
	mutex sync.RWMutex

	// writeMu keeps notifications in write order.
	writeMu sync.Mutex
	hub     *hub
}

// NewMemoryArea creates an empty in-memory area.
func NewMemoryArea() *MemoryArea {
	return &MemoryArea{
		data: make(map[string][]byte),
		hub:  newHub(),
	}
}

// Name returns the area name.
func (a *MemoryArea) Name() string { return AreaLocal }

// Get returns the raw JSON of every requested key that is present.
// With no keys it returns the whole area.
func (a *MemoryArea) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		for k, v := range a.data {
			out[k] = clone(v)
		}
		return out, nil
	}
	for _, k := range keys {
		if v, ok := a.data[k]; ok {
			out[k] = clone(v)
		}
	}
	return out, nil
}

// Set writes every value and then publishes one change per key.
func (a *MemoryArea) Set(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := encodeValues(values)
	if err != nil {
		return fmt.Errorf("encode storage values: %w", err)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	changes := make([]domain.StorageChange, 0, len(encoded))
	a.mutex.Lock()
	for k, v := range encoded {
		changes = append(changes, domain.StorageChange{
			Area:     AreaLocal,
			Key:      k,
			OldValue: a.data[k],
			NewValue: clone(v),
		})
		a.data[k] = v
	}
	a.mutex.Unlock()

	a.hub.publish(changes)
	return nil
}

// Remove deletes keys, publishing a change with a nil NewValue for each one present.
func (a *MemoryArea) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	var changes []domain.StorageChange
	a.mutex.Lock()
	for _, k := range keys {
		if old, ok := a.data[k]; ok {
			changes = append(changes, domain.StorageChange{Area: AreaLocal, Key: k, OldValue: old})
			delete(a.data, k)
		}
	}
	a.mutex.Unlock()

	a.hub.publish(changes)
	return nil
}

// Subscribe registers fn for every change in this area.
func (a *MemoryArea) Subscribe(fn func(domain.StorageChange)) func() {
	return a.hub.subscribe(fn)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
