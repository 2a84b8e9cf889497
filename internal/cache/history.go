package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/internal/store"
	"github.com/capitalize-ai/sqlchat/pkg/metrics"
)

const (
	// HistoryKeyPrefix prefixes every session history key.
	HistoryKeyPrefix = "session:"

	// MaxHistoryTurns is how many turns survive each write (10 user/assistant pairs).
	MaxHistoryTurns = 20
)

// HistoryStore keeps a bounded, TTL-limited list of turns per session.
// Writes are last-writer-wins; concurrent turns on one session may race.
type HistoryStore struct {
	store store.Store
	ttl   time.Duration
}

// NewHistoryStore creates a history store whose entries live for ttl.
func NewHistoryStore(s store.Store, ttl time.Duration) *HistoryStore {
	return &HistoryStore{store: s, ttl: ttl}
}

// Load returns the stored turns for sessionID, or an empty slice.
func (h *HistoryStore) Load(ctx context.Context, sessionID string) ([]model.Turn, error) {
	data, err := h.store.Get(ctx, HistoryKeyPrefix+sessionID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordCacheLookup("session_history", false)
		return []model.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var stored []model.Turn
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	metrics.RecordCacheLookup("session_history", true)

	turns := make([]model.Turn, 0, len(stored))
	for _, t := range stored {
		if t.Role == "" {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Save persists the most recent MaxHistoryTurns turns for sessionID.
func (h *HistoryStore) Save(ctx context.Context, sessionID string, turns []model.Turn) error {
	turns = Truncate(turns, MaxHistoryTurns)

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := h.store.SetWithTTL(ctx, HistoryKeyPrefix+sessionID, data, h.ttl); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Truncate keeps the last n turns.
func Truncate(turns []model.Turn, n int) []model.Turn {
	if turns == nil {
		return []model.Turn{}
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
