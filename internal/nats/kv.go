package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/sqlchat/internal/store"
)

// DefaultBucket is the KeyValue bucket holding handoff, cache and history keys.
const DefaultBucket = "SQLCHAT"

// envelope carries a value together with its absolute expiry. JetStream
// buckets only support a bucket-wide max age, so per-key TTLs are enforced on
// read and the bucket max age garbage collects.
type envelope struct {
	ExpiresAt int64  `json:"exp"`
	Value     []byte `json:"v"`
}

// KVConfig configures a KVStore.
type KVConfig struct {
	Bucket string
	// MaxTTL is the longest TTL any caller will request; it becomes the bucket max age.
	MaxTTL time.Duration
	// OpTimeout bounds each store operation. Zero leaves the caller's context as is.
	OpTimeout time.Duration
	// Memory selects memory storage for the bucket instead of file storage.
	Memory bool
}

// KVStore implements store.Store on a JetStream KeyValue bucket.
type KVStore struct {
	client    *Client
	kv        jetstream.KeyValue
	opTimeout time.Duration
	now       func() time.Time
}

var _ store.Store = (*KVStore)(nil)

// NewKVStore binds to the configured bucket, creating it if needed. The store
// takes ownership of client and closes it on Close.
func NewKVStore(ctx context.Context, client *Client, cfg KVConfig) (*KVStore, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}

	kv, err := ensureBucket(ctx, client.JetStream(), cfg)
	if err != nil {
		return nil, err
	}

	return &KVStore{
		client:    client,
		kv:        kv,
		opTimeout: cfg.OpTimeout,
		now:       time.Now,
	}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.Bucket, err)
	}

	storage := jetstream.FileStorage
	if cfg.Memory {
		storage = jetstream.MemoryStorage
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Stream handoff, SQL result cache and session history",
		History:     1,
		TTL:         cfg.MaxTTL,
		Storage:     storage,
	})
	if errors.Is(err, jetstream.ErrBucketExists) {
		// Another replica created it first.
		return js.KeyValue(ctx, cfg.Bucket)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

// Get implements store.Store.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry, err := s.kv.Get(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return s.open(entry.Value())
}

// SetWithTTL implements store.Store.
func (s *KVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(envelope{
		ExpiresAt: s.now().Add(ttl).UnixNano(),
		Value:     value,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if _, err := s.kv.Put(ctx, encodeKey(key), data); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete implements store.Store.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.kv.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// GetAndDelete implements store.Store. The delete is conditional on the
// revision that was read, so of several concurrent callers only the first
// delete succeeds.
func (s *KVStore) GetAndDelete(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	k := encodeKey(key)
	entry, err := s.kv.Get(ctx, k)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	if err := s.kv.Delete(ctx, k, jetstream.LastRevision(entry.Revision())); err != nil {
		if lostRace(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("kv delete %s: %w", key, err)
	}

	return s.open(entry.Value())
}

// Ping implements store.Store.
func (s *KVStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx); err != nil {
		return err
	}
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("kv status: %w", err)
	}
	return nil
}

// Name implements store.Store.
func (s *KVStore) Name() string {
	return "nats"
}

// Close implements store.Store.
func (s *KVStore) Close() error {
	s.client.Close()
	return nil
}

func (s *KVStore) open(data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if s.now().UnixNano() >= env.ExpiresAt {
		return nil, store.ErrNotFound
	}
	return env.Value, nil
}

func (s *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func lostRace(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

// encodeKey maps a logical "prefix:rest" key onto the NATS key alphabet
// ([-/_=.A-Za-z0-9]). The prefix stays readable; the rest is base64url encoded
// because session ids and hashes may contain arbitrary characters.
func encodeKey(key string) string {
	prefix, rest, found := strings.Cut(key, ":")
	if !found || !validToken(prefix) {
		prefix, rest = "k", key
	}
	if rest == "" {
		return prefix + "._"
	}
	return prefix + "." + base64.RawURLEncoding.EncodeToString([]byte(rest))
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
