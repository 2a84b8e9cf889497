// Package handoff parks a submitted chat request until exactly one stream
// consumer claims it, and lets reconnecting consumers replay the claim.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/internal/store"
	"github.com/capitalize-ai/sqlchat/pkg/metrics"
)

const (
	pendingPrefix = "pending:"
	claimedPrefix = "claimed:"

	// PendingTTL bounds how long a submission waits for its stream.
	PendingTTL = 60 * time.Second
	// ClaimedTTL bounds how long a claimed request can be replayed.
	ClaimedTTL = 30 * time.Second
)

// ErrNotFound is returned when a stream ID was never submitted, has expired,
// or was claimed by a concurrent consumer.
var ErrNotFound = errors.New("stream not found or expired")

// Handoff coordinates the pending and claimed state of stream IDs.
type Handoff struct {
	store      store.Store
	pendingTTL time.Duration
	claimedTTL time.Duration
	newID      func() string
}

// New returns a Handoff backed by s.
func New(s store.Store) *Handoff {
	return &Handoff{
		store:      s,
		pendingTTL: PendingTTL,
		claimedTTL: ClaimedTTL,
		newID:      uuid.NewString,
	}
}

// Submit parks req under a fresh stream ID.
func (h *Handoff) Submit(ctx context.Context, req model.ChatRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	id := h.newID()
	if err := h.store.SetWithTTL(ctx, pendingPrefix+id, data, h.pendingTTL); err != nil {
		return "", fmt.Errorf("failed to park request: %w", err)
	}
	return id, nil
}

// ClaimOrReplay returns the request for streamID. A claimed entry is replayed
// without consuming it; otherwise the pending entry is atomically consumed and
// promoted to claimed.
func (h *Handoff) ClaimOrReplay(ctx context.Context, streamID string) (*model.ChatRequest, error) {
	data, err := h.store.Get(ctx, claimedPrefix+streamID)
	if err == nil {
		metrics.RecordStreamClaim("replayed")
		return decode(data)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read claim: %w", err)
	}

	data, err = h.store.GetAndDelete(ctx, pendingPrefix+streamID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordStreamClaim("not_found")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim request: %w", err)
	}

	req, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := h.store.SetWithTTL(ctx, claimedPrefix+streamID, data, h.claimedTTL); err != nil {
		return nil, fmt.Errorf("failed to record claim: %w", err)
	}

	metrics.RecordStreamClaim("claimed")
	return req, nil
}

// ReleaseClaim drops the claimed entry. Releasing an unknown ID is a no-op.
func (h *Handoff) ReleaseClaim(ctx context.Context, streamID string) error {
	if err := h.store.Delete(ctx, claimedPrefix+streamID); err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

func decode(data []byte) (*model.ChatRequest, error) {
	var req model.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &req, nil
}
