package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentimentiq/backend/internal/domain"
)

func TestMapToSentimentResult(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantLabel domain.TrustLevel
	}{
		{"explicit label kept", `{"score":20,"label":"high","pros":[],"cons":[]}`, domain.TrustHigh},
		{"low band", `{"score":33,"pros":[],"cons":[]}`, domain.TrustLow},
		{"medium band", `{"score":50,"pros":[],"cons":[]}`, domain.TrustMedium},
		{"high band", `{"score":100,"pros":[],"cons":[]}`, domain.TrustHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapToSentimentResult(json.RawMessage(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, got.Label)
		})
	}
}

func TestMapToSentimentResult_KeepsAuxiliaryData(t *testing.T) {
	got, err := MapToSentimentResult(json.RawMessage(`{"score":70,"summary":"Mostly positive","pros":["a"],"cons":["b"],"sentiment":{"reddit":0.8}}`))
	require.NoError(t, err)
	assert.Equal(t, "Mostly positive", got.Summary)
	assert.JSONEq(t, `{"reddit":0.8}`, string(got.Sentiment))
	assert.Equal(t, DefaultPlatforms, got.Platforms)
}
