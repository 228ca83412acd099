package content

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sentimentiq/backend/internal/domain"
	"github.com/sentimentiq/backend/internal/extraction"
)

type attachment struct {
	scanner *Scanner
	source  *SnapshotSource
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager attaches one scanner to every tab showing a matching page.
type Manager struct {
	ctx       context.Context
	messenger domain.Messenger
	extractor *extraction.Extractor
	matcher   *Matcher
	opts      []ScannerOption
	logger    *zap.Logger

	mu   sync.Mutex
	tabs map[int]*attachment
}

// NewManager creates a manager. Scanners live until detached or ctx ends.
func NewManager(ctx context.Context, messenger domain.Messenger, extractor *extraction.Extractor, matcher *Matcher, logger *zap.Logger, opts ...ScannerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		ctx:       ctx,
		messenger: messenger,
		extractor: extractor,
		matcher:   matcher,
		opts:      append([]ScannerOption{WithLogger(logger)}, opts...),
		logger:    logger.Named("content"),
		tabs:      make(map[int]*attachment),
	}
}

// Push records a DOM snapshot for tabID. A matching page attaches a scanner
// or triggers a pass on the existing one. A non-matching page detaches it.
// It reports whether a scanner is attached afterwards.
func (m *Manager) Push(tabID int, url, html string) bool {
	if !m.matcher.Matches(url) {
		m.Detach(tabID)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.tabs[tabID]; ok {
		a.source.Update(url, html)
		a.scanner.Navigate()
		return true
	}

	source := NewSnapshotSource()
	source.Update(url, html)
	scanner := NewScanner(tabID, source, m.messenger, m.extractor, m.opts...)

	ctx, cancel := context.WithCancel(m.ctx)
	a := &attachment{scanner: scanner, source: source, cancel: cancel, done: make(chan struct{})}
	m.tabs[tabID] = a

	go func() {
		defer close(a.done)
		_ = scanner.Run(ctx)
	}()
	m.logger.Debug("scanner attached", zap.Int("tab", tabID))
	return true
}

// Detach stops the scanner of tabID, if any, and waits for it to exit.
func (m *Manager) Detach(tabID int) {
	m.mu.Lock()
	a, ok := m.tabs[tabID]
	delete(m.tabs, tabID)
	m.mu.Unlock()

	if !ok {
		return
	}
	a.cancel()
	<-a.done
	m.logger.Debug("scanner detached", zap.Int("tab", tabID))
}

// Attached reports whether tabID has a running scanner.
func (m *Manager) Attached(tabID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tabs[tabID]
	return ok
}

// Close detaches every scanner.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]int, 0, len(m.tabs))
	for id := range m.tabs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Detach(id)
	}
}
