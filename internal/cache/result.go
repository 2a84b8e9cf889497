// Package cache implements the SQL result cache and session history on top of
// the shared store abstraction.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/internal/store"
	"github.com/capitalize-ai/sqlchat/pkg/metrics"
)

// ResultKeyPrefix prefixes every cached result key.
const ResultKeyPrefix = "sql_cache:"

// ResultCache maps normalized SQL text to a previously computed result.
type ResultCache struct {
	store store.Store
	ttl   time.Duration
}

// NewResultCache creates a result cache whose entries live for ttl.
func NewResultCache(s store.Store, ttl time.Duration) *ResultCache {
	return &ResultCache{store: s, ttl: ttl}
}

// Key derives the cache key for sql. Only surrounding whitespace and letter
// case are normalized.
func Key(sql string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(sql))))
	return ResultKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached result for sql. The boolean is false on a miss.
func (c *ResultCache) Get(ctx context.Context, sql string) (*model.QueryResult, bool, error) {
	data, err := c.store.Get(ctx, Key(sql))
	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordCacheLookup("sql_result", false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached result: %w", err)
	}

	result, err := decodeResult(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}

	metrics.RecordCacheLookup("sql_result", true)
	return result, true, nil
}

// decodeResult restores integers as int64 so values beyond 2^53 survive the
// round trip and a cached row marshals to the same bytes as a fresh one.
func decodeResult(data []byte) (*model.QueryResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var result model.QueryResult
	if err := dec.Decode(&result); err != nil {
		return nil, err
	}
	for _, row := range result.Rows {
		for k, v := range row {
			row[k] = restoreNumbers(v)
		}
	}
	return result.Normalize(), nil
}

func restoreNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = restoreNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = restoreNumbers(inner)
		}
		return t
	default:
		return v
	}
}

// Set stores result under sql, replacing any existing entry.
func (c *ResultCache) Set(ctx context.Context, sql string, result *model.QueryResult) error {
	data, err := json.Marshal(result.Normalize())
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.store.SetWithTTL(ctx, Key(sql), data, c.ttl); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}
