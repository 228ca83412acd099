// Package content runs the per-tab detection loop: extract on start, on a
// fixed interval and on every navigation, then report to the coordinator
// without waiting for an answer.
package content

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentimentiq/backend/internal/domain"
	"github.com/sentimentiq/backend/internal/extraction"
)

// DefaultPollInterval is how often a scanner re-runs extraction.
const DefaultPollInterval = 3 * time.Second

const sendTimeout = 5 * time.Second

// Scanner owns the detection loop of a single tab.
type Scanner struct {
	tabID     int
	source    domain.PageSource
	messenger domain.Messenger
	extractor *extraction.Extractor
	interval  time.Duration
	logger    *zap.Logger

	navigate chan struct{}
	sends    sync.WaitGroup
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = logger }
}

// NewScanner creates a scanner for tabID.
func NewScanner(tabID int, source domain.PageSource, messenger domain.Messenger, extractor *extraction.Extractor, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		tabID:     tabID,
		source:    source,
		messenger: messenger,
		extractor: extractor,
		interval:  DefaultPollInterval,
		logger:    zap.NewNop(),
		navigate:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("content").With(zap.Int("tab", tabID))
	return s
}

// Navigate requests an extra pass, as a back/forward navigation does.
// Requests coalesce while one is pending.
func (s *Scanner) Navigate() {
	select {
	case s.navigate <- struct{}{}:
	default:
	}
}

// Run scans until ctx is cancelled. The ticker and navigation listener stop
// together; sends still in flight are cancelled with ctx.
func (s *Scanner) Run(ctx context.Context) error {
	defer s.sends.Wait()

	s.Scan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Scan(ctx)
		case <-s.navigate:
			s.Scan(ctx)
		}
	}
}

// Scan runs one extraction pass and reports it. It returns the detected
// product, or nil. Without a snapshot nothing is reported.
func (s *Scanner) Scan(ctx context.Context) *domain.ProductMetadata {
	page, err := s.source.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("no page snapshot", zap.Error(err))
		return nil
	}

	res := s.extractor.ExtractHTML(page.HTML, page.URL)
	if res.Err != nil {
		s.logger.Warn("extraction failed", zap.String("url", page.URL), zap.Error(res.Err))
	}

	s.send(ctx, domain.Message{Type: domain.MessageProductDetected, Payload: res.Product})
	return res.Product
}

func (s *Scanner) send(ctx context.Context, msg domain.Message) {
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := s.messenger.Send(sctx, s.tabID, msg); err != nil {
			s.logger.Warn("failed to deliver detection", zap.Error(err))
		}
	}()
}
