package handoff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/internal/store"
)

func newHandoff(t *testing.T) (*Handoff, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore(0)
	t.Cleanup(func() { _ = s.Close() })
	return New(s), s
}

func TestHandoff_Lifecycle(t *testing.T) {
	ctx := context.Background()
	h, s := newHandoff(t)

	req := model.ChatRequest{Query: "how many customers?", SessionID: "s1"}
	id, err := h.Submit(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := h.ClaimOrReplay(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, req, *got)

	_, err = s.Get(ctx, pendingPrefix+id)
	assert.ErrorIs(t, err, store.ErrNotFound, "pending entry is consumed by the claim")

	replayed, err := h.ClaimOrReplay(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, req, *replayed)

	require.NoError(t, h.ReleaseClaim(ctx, id))
	_, err = h.ClaimOrReplay(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandoff_UnknownStream(t *testing.T) {
	h, _ := newHandoff(t)

	_, err := h.ClaimOrReplay(context.Background(), "never-submitted")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, h.ReleaseClaim(context.Background(), "never-submitted"))
}

func TestHandoff_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandoff(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := h.Submit(ctx, model.ChatRequest{Query: "q", SessionID: "s"})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestHandoff_ConcurrentClaimsSeeSameRequest(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandoff(t)

	req := model.ChatRequest{Query: "top orders", SessionID: "s9"}
	id, err := h.Submit(ctx, req)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*model.ChatRequest, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.ClaimOrReplay(ctx, id)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			// A consumer that checked before the winner recorded its claim loses.
			assert.ErrorIs(t, errs[i], ErrNotFound)
			continue
		}
		assert.Equal(t, req, *results[i])
	}
	_, err = h.ClaimOrReplay(ctx, id)
	assert.NoError(t, err, "the claim remains replayable")
}

func TestHandoff_DefaultTTLs(t *testing.T) {
	h, _ := newHandoff(t)
	assert.Equal(t, 60*time.Second, h.pendingTTL)
	assert.Equal(t, 30*time.Second, h.claimedTTL)
}

func TestHandoff_PendingExpires(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandoff(t)
	h.pendingTTL = 30 * time.Millisecond

	id, err := h.Submit(ctx, model.ChatRequest{Query: "q", SessionID: "s1"})
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = h.ClaimOrReplay(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound, "an unclaimed request is gone after the pending window")
}

func TestHandoff_ClaimExpires(t *testing.T) {
	ctx := context.Background()
	h, s := newHandoff(t)
	h.claimedTTL = 30 * time.Millisecond

	req := model.ChatRequest{Query: "q", SessionID: "s1"}
	id, err := h.Submit(ctx, req)
	require.NoError(t, err)

	_, err = h.ClaimOrReplay(ctx, id)
	require.NoError(t, err)
	replayed, err := h.ClaimOrReplay(ctx, id)
	require.NoError(t, err, "replay works inside the claim window")
	assert.Equal(t, req, *replayed)

	time.Sleep(80 * time.Millisecond)

	_, err = s.Get(ctx, pendingPrefix+id)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.ClaimOrReplay(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound, "a claim cannot be replayed after the claim window")
}
