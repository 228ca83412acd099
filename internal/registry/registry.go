// Package registry is the background coordinator: it owns the last product
// detected in every tab and mirrors the active tab's product into the shared
// currentProduct storage slot.
//
// All state lives in the goroutine running Run. Every entry point posts an
// event to it, so the per-tab map needs no locking. Delivery is best-effort:
// a failed slot write is logged and counted, never retried.
package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sentimentiq/backend/internal/domain"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultQueryTimeout = 2 * time.Second
	eventBuffer         = 64
)

// Metrics receives coordinator measurements.
type Metrics interface {
	SlotWritten(err error)
	TabsTracked(n int)
}

type nopMetrics struct{}

func (nopMetrics) SlotWritten(error) {}
func (nopMetrics) TabsTracked(int)   {}

// state is owned by the event loop.
type state struct {
	products map[int]*domain.ProductMetadata
	// activations increments on every tab activation. A detection's deferred
	// propagation is dropped if another activation happened in between.
	activations uint64
}

type event func(ctx context.Context, s *state)

// Registry is the tab registry coordinator.
type Registry struct {
	storage domain.StorageArea
	tabs    domain.TabQuerier
	logger  *zap.Logger
	metrics Metrics

	writeTimeout time.Duration
	queryTimeout time.Duration

	events chan event
	done   chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger.Named("registry") }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTimeouts overrides the storage write and active-tab query timeouts.
func WithTimeouts(write, query time.Duration) Option {
	return func(r *Registry) {
		r.writeTimeout = write
		r.queryTimeout = query
	}
}

// New creates a Registry. Call Run to start it.
func New(storage domain.StorageArea, tabs domain.TabQuerier, opts ...Option) *Registry {
	r := &Registry{
		storage:      storage,
		tabs:         tabs,
		logger:       zap.NewNop(),
		metrics:      nopMetrics{},
		writeTimeout: defaultWriteTimeout,
		queryTimeout: defaultQueryTimeout,
		events:       make(chan event, eventBuffer),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes events until ctx is cancelled. The per-tab map starts empty
// on every run.
func (r *Registry) Run(ctx context.Context) error {
	defer close(r.done)

	s := &state{products: make(map[int]*domain.ProductMetadata)}
	r.logger.Info("tab registry started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("tab registry stopped", zap.Int("tabs", len(s.products)))
			return ctx.Err()
		case ev := <-r.events:
			ev(ctx, s)
		}
	}
}

func (r *Registry) post(ctx context.Context, ev event) error {
	select {
	case <-r.done:
		return domain.ErrRegistryClosed
	default:
	}
	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return domain.ErrRegistryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleMessage records a detection from tabID. The response acknowledges
// receipt only; propagation to storage happens afterwards, if at all.
func (r *Registry) HandleMessage(ctx context.Context, tabID int, msg domain.Message) (domain.MessageResponse, error) {
	if msg.Type != domain.MessageProductDetected {
		return domain.MessageResponse{}, domain.ErrInvalidRequest
	}

	product := msg.Payload.Sanitize()

	err := r.post(ctx, func(loopCtx context.Context, s *state) {
		s.products[tabID] = product
		r.metrics.TabsTracked(len(s.products))
		r.logger.Debug("product detected", zap.Int("tab", tabID), zap.Bool("found", product != nil))

		go r.propagateIfActive(loopCtx, tabID, s.activations)
	})
	if err != nil {
		return domain.MessageResponse{}, err
	}
	return domain.MessageResponse{Success: true}, nil
}

// Send implements domain.Messenger for in-process scanners.
func (r *Registry) Send(ctx context.Context, tabID int, msg domain.Message) error {
	_, err := r.HandleMessage(ctx, tabID, msg)
	return err
}

// propagateIfActive runs off the loop: it asks which tab is active and, if it
// is tabID, posts a write that re-reads the map at that moment.
func (r *Registry) propagateIfActive(ctx context.Context, tabID int, activations uint64) {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	active, ok, err := r.tabs.ActiveTab(qctx)
	if err != nil {
		r.logger.Warn("active tab query failed", zap.Int("tab", tabID), zap.Error(err))
		return
	}
	if !ok || active != tabID {
		return
	}

	err = r.post(ctx, func(loopCtx context.Context, s *state) {
		if s.activations != activations {
			r.logger.Debug("dropping stale propagation", zap.Int("tab", tabID))
			return
		}
		r.writeSlot(loopCtx, tabID, s.products[tabID])
	})
	if err != nil {
		r.logger.Debug("propagation not delivered", zap.Int("tab", tabID), zap.Error(err))
	}
}

// TabActivated mirrors tabID's product (or none) into the slot unconditionally.
func (r *Registry) TabActivated(ctx context.Context, tabID int) error {
	return r.post(ctx, func(loopCtx context.Context, s *state) {
		s.activations++
		r.logger.Debug("tab activated", zap.Int("tab", tabID))
		r.writeSlot(loopCtx, tabID, s.products[tabID])
	})
}

// TabUpdated re-mirrors tabID's product once an active tab finishes loading.
func (r *Registry) TabUpdated(ctx context.Context, tabID int, status string, active bool) error {
	if status != "complete" || !active {
		return nil
	}
	return r.post(ctx, func(loopCtx context.Context, s *state) {
		r.writeSlot(loopCtx, tabID, s.products[tabID])
	})
}

// TabRemoved forgets tabID. The slot is left as is, even if tabID filled it.
func (r *Registry) TabRemoved(ctx context.Context, tabID int) error {
	return r.post(ctx, func(_ context.Context, s *state) {
		delete(s.products, tabID)
		r.metrics.TabsTracked(len(s.products))
		r.logger.Debug("tab removed", zap.Int("tab", tabID))
	})
}

// Snapshot returns a copy of the per-tab map.
func (r *Registry) Snapshot(ctx context.Context) (map[int]*domain.ProductMetadata, error) {
	reply := make(chan map[int]*domain.ProductMetadata, 1)
	err := r.post(ctx, func(_ context.Context, s *state) {
		out := make(map[int]*domain.ProductMetadata, len(s.products))
		for id, p := range s.products {
			out[id] = p.Clone()
		}
		reply <- out
	})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-reply:
		return out, nil
	case <-r.done:
		return nil, domain.ErrRegistryClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) writeSlot(ctx context.Context, tabID int, product *domain.ProductMetadata) {
	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	err := r.storage.Set(wctx, map[string]any{domain.KeyCurrentProduct: product})
	r.metrics.SlotWritten(err)
	if err != nil {
		r.logger.Warn("failed to sync current product", zap.Int("tab", tabID), zap.Error(err))
		return
	}
	r.logger.Debug("synced current product", zap.Int("tab", tabID), zap.Bool("found", product != nil))
}
