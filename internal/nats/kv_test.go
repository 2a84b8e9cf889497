package nats

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/sqlchat/internal/store"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func newTestKVStore(t *testing.T) *KVStore {
	t.Helper()
	srv := runJetStreamServer(t)

	ctx := context.Background()
	client, err := Connect(ctx, Config{URL: srv.ClientURL()}, logger.NewNop())
	require.NoError(t, err)

	s, err := NewKVStore(ctx, client, KVConfig{
		Bucket:    "TEST",
		MaxTTL:    time.Hour,
		OpTimeout: 2 * time.Second,
		Memory:    true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "prefixed", key: "session:s1", want: "session.czE"},
		{name: "no prefix", key: "plain", want: "k.cGxhaW4"},
		{name: "empty rest", key: "pending:", want: "pending._"},
		{name: "invalid prefix", key: "a b:c", want: "k.YSBiOmM"},
		{name: "hash", key: "sql_cache:ab", want: "sql_cache.YWI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeKey(tt.key))
		})
	}
}

func TestKVStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestKVStore(t)

	require.NoError(t, s.Ping(ctx))
	assert.Equal(t, "nats", s.Name())

	require.NoError(t, s.SetWithTTL(ctx, "session:user@example.com", []byte(`[{"role":"user"}]`), time.Minute))
	got, err := s.Get(ctx, "session:user@example.com")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"role":"user"}]`, string(got))

	require.NoError(t, s.Delete(ctx, "session:user@example.com"))
	_, err = s.Get(ctx, "session:user@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "session:never-written"))
}

func TestKVStore_PerKeyTTL(t *testing.T) {
	ctx := context.Background()
	s := newTestKVStore(t)

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithTTL(ctx, "claimed:1", []byte("x"), 30*time.Second))

	s.now = func() time.Time { return now.Add(31 * time.Second) }
	_, err := s.Get(ctx, "claimed:1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetAndDelete(ctx, "claimed:1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKVStore_GetAndDeleteSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestKVStore(t)

	require.NoError(t, s.SetWithTTL(ctx, "pending:abc", []byte("req"), time.Minute))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.GetAndDelete(ctx, "pending:abc")
			if err == nil {
				assert.Equal(t, "req", string(v))
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, store.ErrNotFound)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	_, err := s.Get(ctx, "pending:abc")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
