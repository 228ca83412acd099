package domain

import (
	"context"
	"io"
)

// StorageChange describes one key written to a storage area.
// A nil NewValue means the key was removed.
type StorageChange struct {
	Area     string
	Key      string
	OldValue []byte
	NewValue []byte
}

// StorageArea defines the persistent key-value contract shared by all contexts.
// Values travel as raw JSON.
type StorageArea interface {
	Name() string
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, values map[string]any) error
	Remove(ctx context.Context, keys ...string) error
	Subscribe(fn func(StorageChange)) (unsubscribe func())
}

// TabQuerier answers which tab is active in the focused window.
type TabQuerier interface {
	ActiveTab(ctx context.Context) (tabID int, ok bool, err error)
}

// Analyzer runs a sentiment analysis for a product.
type Analyzer interface {
	Analyze(ctx context.Context, product ProductMetadata, token string) (*SentimentResult, error)
}

// Messenger delivers runtime messages from a tab to the coordinator, at most once.
type Messenger interface {
	Send(ctx context.Context, tabID int, msg Message) error
}

// Page is one DOM snapshot of a tab.
type Page struct {
	URL  string
	HTML io.Reader
}

// PageSource yields the current DOM snapshot of a tab.
type PageSource interface {
	Snapshot(ctx context.Context) (*Page, error)
}
