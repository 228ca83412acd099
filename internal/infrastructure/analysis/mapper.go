package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sentimentiq/backend/internal/domain"
)

// DefaultPlatforms is assumed when the backend does not name its sources.
var DefaultPlatforms = []string{"Reddit"}

// MapToSentimentResult decodes and validates the data field of an analyze
// response. Anything that fails validation is ErrInvalidResponse; there are
// no partial results.
func MapToSentimentResult(data json.RawMessage) (*domain.SentimentResult, error) {
	if len(bytes.TrimSpace(data)) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("%w: missing data", domain.ErrInvalidResponse)
	}

	var result domain.SentimentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}

	if result.Label == "" {
		result.Label = domain.TrustLevelForScore(result.Score)
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	if len(result.Platforms) == 0 {
		result.Platforms = append([]string(nil), DefaultPlatforms...)
	}
	return &result, nil
}
