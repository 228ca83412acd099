// Package store is the popup/side-panel state container. Its only inbound
// synchronization path is the currentProduct storage key; every other
// transition is a local action.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentimentiq/backend/internal/domain"
)

// Store holds the UI state of one popup or side-panel instance.
type Store struct {
	area   domain.StorageArea
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.RWMutex
	state State
	// persistMu orders persisted writes the same way as the state updates
	// they snapshot.
	persistMu sync.Mutex
	// productSynced is set once a storage change has delivered currentProduct,
	// so the initial bulk read cannot overwrite a newer value.
	productSynced bool

	listenersMu sync.Mutex
	listeners   map[int]func(State)
	nextID      int

	unsubscribe func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger.Named("store") }
}

// WithClock overrides the time source used to stamp history entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides history entry ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates a store, subscribes to the local area and loads the persisted
// keys. Values failing their shape check are discarded; a failed read leaves
// the defaults in place.
func New(ctx context.Context, area domain.StorageArea, opts ...Option) *Store {
	s := &Store{
		area:      area,
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
		state:     initialState(),
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubscribe = area.Subscribe(s.onStorageChange)
	s.load(ctx)
	return s
}

// Close stops observing storage.
func (s *Store) Close() {
	s.unsubscribe()
}

func (s *Store) load(ctx context.Context) {
	data, err := s.area.Get(ctx, domain.KeyCurrentProduct, domain.KeyHistory, domain.KeyScansUsed)
	if err != nil {
		s.logger.Warn("failed to load persisted state", zap.Error(err))
		return
	}

	s.update(func(st *State) {
		if raw, ok := data[domain.KeyCurrentProduct]; ok && !s.productSynced {
			var p domain.ProductMetadata
			if json.Unmarshal(raw, &p) == nil {
				st.CurrentProduct = p.Sanitize()
			}
		}
		if raw, ok := data[domain.KeyHistory]; ok {
			var history []domain.HistoryEntry
			if json.Unmarshal(raw, &history) == nil && history != nil {
				st.History = validHistory(history)
			}
		}
		if raw, ok := data[domain.KeyScansUsed]; ok {
			var n int
			if json.Unmarshal(raw, &n) == nil && n >= 0 {
				st.ScansUsed = n
			}
		}
	})
}

// validHistory keeps the well-formed entries, newest first, up to
// MaxHistoryEntries.
func validHistory(history []domain.HistoryEntry) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, min(len(history), domain.MaxHistoryEntries))
	for _, e := range history {
		if len(out) == domain.MaxHistoryEntries {
			break
		}
		if !e.Product.Valid() || e.Result.Validate() != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Store) onStorageChange(c domain.StorageChange) {
	if c.Area != "local" || c.Key != domain.KeyCurrentProduct {
		return
	}

	var product *domain.ProductMetadata
	if c.NewValue != nil {
		if err := json.Unmarshal(c.NewValue, &product); err != nil {
			s.logger.Debug("undecodable currentProduct change", zap.Error(err))
			product = nil
		}
	}

	s.update(func(st *State) {
		s.productSynced = true
		st.CurrentProduct = product
	})
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) update(fn func(*State)) State {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.listenersMu.Lock()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(snapshot.clone())
	}
	return snapshot
}

func (s *Store) persist(ctx context.Context, key string, value any) error {
	if err := s.area.Set(ctx, map[string]any{key: value}); err != nil {
		s.logger.Warn("failed to persist", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
