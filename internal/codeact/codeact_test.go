package codeact

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/sqlchat/internal/cache"
	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/internal/store"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
)

type fakeDB struct {
	mu     sync.Mutex
	calls  []string
	result *model.QueryResult
	err    error
}

func (f *fakeDB) Execute(_ context.Context, sql string) (*model.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sql)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeDB) Dialect() string { return "sqlite" }

func (f *fakeDB) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*model.QueryResult, bool, error) {
	return nil, false, errors.New("store unreachable")
}

func (brokenCache) Set(context.Context, string, *model.QueryResult) error {
	return errors.New("store unreachable")
}

func newExecutor(t *testing.T, db Database) *Executor {
	t.Helper()
	s := store.NewMemoryStore(0)
	t.Cleanup(func() { _ = s.Close() })
	return NewExecutor(db, cache.NewResultCache(s, time.Hour), logger.NewNop())
}

func collect(events *[]model.AgentEvent) func(model.AgentEvent) error {
	return func(ev model.AgentEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func types(events []model.AgentEvent) []model.EventType {
	out := make([]model.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "tagged fence", in: "Here you go:\n```sql\nSELECT 1;\n```\nthanks", want: "SELECT 1;"},
		{name: "upper tag", in: "```SQL\n  SELECT * FROM t  \n```", want: "SELECT * FROM t"},
		{name: "untagged fence", in: "```\nSELECT 2\n```", want: "SELECT 2"},
		{name: "first block wins", in: "```sql\nSELECT a\n```\n```sql\nSELECT b\n```", want: "SELECT a"},
		{name: "no fence", in: "   SELECT 3  \n", want: "SELECT 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSQL(tt.in))
		})
	}
}

func TestVerifyReadOnly(t *testing.T) {
	for _, sql := range []string{
		"SELECT * FROM orders",
		"SELECT created_at, updated_at FROM customers",
		"SELECT count(*) AS deleted_count FROM executions",
	} {
		assert.NoError(t, VerifyReadOnly(sql), sql)
	}

	tests := []struct {
		sql     string
		keyword string
	}{
		{"DROP TABLE orders", "DROP"},
		{"select 1; delete from orders", "DELETE"},
		{"EXECUTE sp_who", "EXECUTE"},
		{"exec sp_who", "EXEC"},
		{"SELECT 'please update me' FROM t", "UPDATE"},
		{"merge into t using s on (1=1)", "MERGE"},
	}
	for _, tt := range tests {
		err := VerifyReadOnly(tt.sql)
		require.Error(t, err, tt.sql)
		assert.ErrorIs(t, err, ErrUnsafeSQL)

		var unsafe *UnsafeSQLError
		require.ErrorAs(t, err, &unsafe)
		assert.Equal(t, tt.keyword, unsafe.Keyword)
		assert.Contains(t, err.Error(), tt.keyword)
	}
}

func TestExecutor_MissThenHit(t *testing.T) {
	db := &fakeDB{result: model.NewQueryResult(
		[]string{"n"},
		[]map[string]any{{"n": int64(3)}},
	)}
	e := newExecutor(t, db)
	ctx := context.Background()

	var first []model.AgentEvent
	out, err := e.Run(ctx, "how many?", "```sql\nSELECT count(*) AS n FROM t\n```", collect(&first))
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.False(t, out.Cached)
	assert.Equal(t, []model.EventType{
		model.EventToolCall, model.EventSQL, model.EventExecuting, model.EventResult,
	}, types(first))
	assert.Equal(t, ToolName, first[0].Tool)
	assert.Equal(t, "how many?", first[0].Input)
	assert.Equal(t, "SELECT count(*) AS n FROM t", first[1].Content)
	assert.Equal(t, "Running query on sqlite...", first[2].Content)

	var second []model.AgentEvent
	out, err = e.Run(ctx, "how many again?", "  select count(*) as n from t ", collect(&second))
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, "Returning cached result...", second[2].Content)

	assert.Equal(t, 1, db.callCount(), "a cached result is never re-executed")
	assert.Equal(t, first[3].Columns, second[3].Columns)
	assert.Equal(t, first[3].Rows, second[3].Rows)
	assert.Equal(t, first[3].RowCount, second[3].RowCount)
}

func TestExecutor_CachedResultMatchesFresh(t *testing.T) {
	db := &fakeDB{result: model.NewQueryResult(
		[]string{"id"},
		[]map[string]any{{"id": int64(9007199254740993)}},
	)}
	e := newExecutor(t, db)
	ctx := context.Background()

	var fresh, cached []model.AgentEvent
	_, err := e.Run(ctx, "biggest id", "SELECT max(id) AS id FROM t", collect(&fresh))
	require.NoError(t, err)
	out, err := e.Run(ctx, "biggest id", "SELECT max(id) AS id FROM t", collect(&cached))
	require.NoError(t, err)
	require.True(t, out.Cached)

	freshJSON, err := json.Marshal(fresh[len(fresh)-1])
	require.NoError(t, err)
	cachedJSON, err := json.Marshal(cached[len(cached)-1])
	require.NoError(t, err)
	assert.Equal(t, `{"type":"result","columns":["id"],"rows":[{"id":9007199254740993}],"row_count":1}`, string(freshJSON))
	assert.Equal(t, string(freshJSON), string(cachedJSON))
	assert.Equal(t, 1, db.callCount())
}

func TestExecutor_RejectsUnsafeSQL(t *testing.T) {
	db := &fakeDB{result: model.NewQueryResult(nil, nil)}
	e := newExecutor(t, db)

	var events []model.AgentEvent
	out, err := e.Run(context.Background(), "clean up", "DROP TABLE orders", collect(&events))
	require.NoError(t, err)

	assert.True(t, out.Failed())
	assert.Equal(t, 0, db.callCount())
	assert.Equal(t, []model.EventType{
		model.EventToolCall, model.EventSQL, model.EventExecuting, model.EventError,
	}, types(events))
	assert.Contains(t, events[3].Content, "DROP")
}

func TestExecutor_LogsRejectionWithStatement(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := store.NewMemoryStore(0)
	t.Cleanup(func() { _ = s.Close() })
	e := NewExecutor(&fakeDB{}, cache.NewResultCache(s, time.Hour), &logger.Logger{Logger: zap.New(core)})

	_, err := e.Run(context.Background(), "clean up", "DROP TABLE orders", func(model.AgentEvent) error { return nil })
	require.NoError(t, err)

	entries := logs.FilterMessage("rejected unsafe SQL").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "codeact", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, "DROP", fields["keyword"])
	assert.Equal(t, "DROP TABLE orders", fields["sql"])
}

func TestExecutor_ExecutionErrorIsNotCached(t *testing.T) {
	db := &fakeDB{err: errors.New("no such table: t")}
	e := newExecutor(t, db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		var events []model.AgentEvent
		out, err := e.Run(ctx, "q", "SELECT * FROM t", collect(&events))
		require.NoError(t, err)
		assert.Equal(t, "no such table: t", out.Err)
		assert.Equal(t, model.EventError, events[len(events)-1].Type)
	}
	assert.Equal(t, 2, db.callCount())
}

func TestExecutor_CacheFailureDegradesToMiss(t *testing.T) {
	db := &fakeDB{result: model.NewQueryResult([]string{"x"}, []map[string]any{{"x": 1}})}
	e := NewExecutor(db, brokenCache{}, logger.NewNop())

	var events []model.AgentEvent
	out, err := e.Run(context.Background(), "q", "SELECT 1 AS x", collect(&events))
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Equal(t, model.EventResult, events[len(events)-1].Type)
}

func TestExecutor_EmitFailureStops(t *testing.T) {
	db := &fakeDB{result: model.NewQueryResult(nil, nil)}
	e := newExecutor(t, db)

	sinkErr := errors.New("client gone")
	calls := 0
	_, err := e.Run(context.Background(), "q", "SELECT 1", func(model.AgentEvent) error {
		calls++
		if calls == 2 {
			return sinkErr
		}
		return nil
	})
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 0, db.callCount())
}

func TestOutcome_Observation(t *testing.T) {
	rows := make([]map[string]any, 60)
	for i := range rows {
		rows[i] = map[string]any{"i": i}
	}
	out := &Outcome{SQL: "SELECT i FROM t", Result: model.NewQueryResult([]string{"i"}, rows)}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Observation()), &decoded))
	assert.Equal(t, float64(60), decoded["row_count"])
	assert.Len(t, decoded["rows"], maxObservationRows)
	assert.Equal(t, true, decoded["truncated"])
	assert.Nil(t, decoded["error"])

	failed := &Outcome{SQL: "SELECT", Err: "syntax error"}
	require.NoError(t, json.Unmarshal([]byte(failed.Observation()), &decoded))
	assert.Equal(t, "syntax error", decoded["error"])
}
