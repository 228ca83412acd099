package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sentimentiq/backend/internal/domain"
)

// Sessions hands out the persistent anonymous session id.
type Sessions struct {
	area domain.StorageArea
	mu   sync.Mutex
}

// NewSessions creates a session id provider backed by area.
func NewSessions(area domain.StorageArea) *Sessions {
	return &Sessions{area: area}
}

// ID returns the stored session id, creating "anon_<uuid>" on first use.
func (s *Sessions) ID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.area.Get(ctx, domain.KeyUserSessionID)
	if err != nil {
		return "", err
	}
	if raw, ok := data[domain.KeyUserSessionID]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil && id != "" {
			return id, nil
		}
	}

	id := "anon_" + uuid.NewString()
	if err := s.area.Set(ctx, map[string]any{domain.KeyUserSessionID: id}); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	return id, nil
}
