// Package storage implements the shared key-value storage area that every
// execution context reads, and that publishes a change for every key written.
package storage

import (
	"sync"

	"github.com/bytedance/sonic"

	"github.com/sentimentiq/backend/internal/domain"
)

// AreaLocal is the name of the profile-local storage area.
const AreaLocal = "local"

// hub fans changes out to subscribers. Subscribers run on the writer's
// goroutine and must not block or write back to the same area.
type hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(domain.StorageChange)
}

func newHub() *hub {
	return &hub{subs: make(map[int]func(domain.StorageChange))}
}

func (h *hub) subscribe(fn func(domain.StorageChange)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(changes []domain.StorageChange) {
	h.mu.RLock()
	subs := make([]func(domain.StorageChange), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

// encodeValues serializes every value up front so a write is all-or-nothing.
func encodeValues(values map[string]any) (map[string][]byte, error) {
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		raw, err := sonic.Marshal(v)
		if err != nil {
			return nil, err
		}
		encoded[key] = raw
	}
	return encoded, nil
}
