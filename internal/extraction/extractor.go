// Package extraction detects a product on an e-commerce page snapshot.
//
// Detection is a cascade where the first strategy to produce a named product wins:
// JSON-LD structured data, then Open Graph meta tags, then the document title on
// allow-listed hosts. Extraction reads the snapshot only and never panics.
package extraction

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sentimentiq/backend/internal/domain"
)

// Strategy names the cascade step that produced a result.
type Strategy string

const (
	StrategyJSONLD    Strategy = "jsonld"
	StrategyOpenGraph Strategy = "opengraph"
	StrategyTitle     Strategy = "title"
	StrategyNone      Strategy = "none"
)

// Result is the outcome of one extraction pass.
type Result struct {
	Product       *domain.ProductMetadata
	Strategy      Strategy
	SkippedBlocks int   // JSON-LD blocks that failed to parse
	Err           error // recovered failure, if any
}

// Extractor runs the detection cascade.
type Extractor struct {
	keywords []string
	logger   *zap.Logger
	observe  func(Strategy)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithKeywords replaces the e-commerce hostname allow-list.
func WithKeywords(keywords []string) Option {
	return func(e *Extractor) { e.keywords = keywords }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithObserver registers a callback invoked with the strategy of every pass.
func WithObserver(fn func(Strategy)) Option {
	return func(e *Extractor) { e.observe = fn }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		keywords: DefaultEcommerceKeywords,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New()

// Extract runs the default cascade over doc, loaded from pageURL.
func Extract(doc *goquery.Document, pageURL string) *domain.ProductMetadata {
	return defaultExtractor.Extract(doc, pageURL).Product
}

// ExtractHTML parses r and runs the cascade. Unparseable input yields no product.
func (e *Extractor) ExtractHTML(r io.Reader, pageURL string) Result {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		e.logger.Warn("failed to parse page", zap.String("url", pageURL), zap.Error(err))
		e.report(StrategyNone)
		return Result{Strategy: StrategyNone, Err: err}
	}
	return e.Extract(doc, pageURL)
}

// Extract runs the cascade over doc. pageURL is the tab's current address.
func (e *Extractor) Extract(doc *goquery.Document, pageURL string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", zap.String("url", pageURL), zap.Any("panic", r))
			res = Result{Strategy: StrategyNone, Err: fmt.Errorf("extraction panic: %v", r)}
		}
		e.report(res.Strategy)
	}()

	if doc == nil {
		return Result{Strategy: StrategyNone}
	}

	product, skipped := e.fromJSONLD(doc, pageURL)
	if product != nil {
		e.logger.Debug("product found via JSON-LD", zap.String("name", product.Name))
		return Result{Product: product, Strategy: StrategyJSONLD, SkippedBlocks: skipped}
	}

	if product := e.fromOpenGraph(doc, pageURL); product != nil {
		e.logger.Debug("product found via Open Graph", zap.String("name", product.Name))
		return Result{Product: product, Strategy: StrategyOpenGraph, SkippedBlocks: skipped}
	}

	if product := e.fromTitle(doc, pageURL); product != nil {
		e.logger.Debug("product found via page title", zap.String("name", product.Name))
		return Result{Product: product, Strategy: StrategyTitle, SkippedBlocks: skipped}
	}

	e.logger.Debug("no product detected", zap.String("url", pageURL))
	return Result{Strategy: StrategyNone, SkippedBlocks: skipped}
}

func (e *Extractor) report(s Strategy) {
	if e.observe != nil {
		e.observe(s)
	}
}

func (e *Extractor) fromJSONLD(doc *goquery.Document, pageURL string) (*domain.ProductMetadata, int) {
	var (
		product *domain.ProductMetadata
		skipped int
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		node, err := ParseJSONLD([]byte(s.Text()))
		if err != nil {
			skipped++
			e.logger.Debug("skipping malformed JSON-LD block", zap.Error(err))
			return true
		}
		product = findProduct(node, pageURL, 0)
		return product == nil
	})
	return product, skipped
}

func (e *Extractor) fromOpenGraph(doc *goquery.Document, pageURL string) *domain.ProductMetadata {
	name := strings.TrimSpace(metaContent(doc, `meta[property="og:title"]`))
	if name == "" {
		return nil
	}

	brand := metaContent(doc, `meta[property="product:brand"]`)
	if brand == "" {
		brand = metaContent(doc, `meta[name="twitter:data2"]`)
	}
	u := productURL(pageURL, metaContent(doc, `meta[property="og:url"]`))

	return &domain.ProductMetadata{Name: name, Brand: brand, URL: u}
}

func (e *Extractor) fromTitle(doc *goquery.Document, pageURL string) *domain.ProductMetadata {
	title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	name, _, _ := strings.Cut(title, "-")
	name = strings.TrimSpace(name)

	host := hostname(pageURL)
	if name == "" || !isEcommerceHost(host, e.keywords) {
		e.logger.Debug("title fallback rejected", zap.String("title", name), zap.String("host", host))
		return nil
	}
	return &domain.ProductMetadata{Name: name, URL: productURL(pageURL, "")}
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return content
}
