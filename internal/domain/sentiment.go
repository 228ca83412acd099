package domain

import (
	"encoding/json"
	"time"
)

// MaxHistoryEntries bounds the persisted analysis history.
const MaxHistoryEntries = 50

// TrustLevel is the coarse three-band classification of a sentiment score.
type TrustLevel string

const (
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
)

// TrustLevelForScore maps a 0-100 score onto its band.
func TrustLevelForScore(score float64) TrustLevel {
	switch {
	case score <= 33:
		return TrustLow
	case score <= 66:
		return TrustMedium
	default:
		return TrustHigh
	}
}

// SentimentResult is one completed analysis returned by the backend.
type SentimentResult struct {
	Score     float64         `json:"score" validate:"gte=0,lte=100"`
	Label     TrustLevel      `json:"label" validate:"omitempty,oneof=low medium high"`
	Summary   string          `json:"summary,omitempty"`
	Pros      []string        `json:"pros" validate:"required"`
	Cons      []string        `json:"cons" validate:"required"`
	Warnings  []string        `json:"warnings,omitempty"`
	Platforms []string        `json:"platforms,omitempty"`
	Sentiment json.RawMessage `json:"sentiment,omitempty"`
}

// Validate checks the result against the response contract.
func (r *SentimentResult) Validate() error {
	return validate.Struct(r)
}

// HistoryEntry records one analysis. Entries are immutable once appended.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Product   ProductMetadata `json:"product"`
	Result    SentimentResult `json:"result"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// NewHistoryEntry stamps an entry with the given time.
func NewHistoryEntry(id string, product ProductMetadata, result SentimentResult, at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:        id,
		Product:   product,
		Result:    result,
		Timestamp: at.UnixMilli(),
	}
}

// PrependHistory returns a new slice with entry first, capped at MaxHistoryEntries.
func PrependHistory(history []HistoryEntry, entry HistoryEntry) []HistoryEntry {
	n := len(history) + 1
	if n > MaxHistoryEntries {
		n = MaxHistoryEntries
	}
	out := make([]HistoryEntry, 0, n)
	out = append(out, entry)
	for _, h := range history {
		if len(out) == n {
			break
		}
		out = append(out, h)
	}
	return out
}
