// Package codeact runs one model-written SQL statement against the database
// and reports each step as an event.
package codeact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
	"github.com/capitalize-ai/sqlchat/pkg/metrics"
	"github.com/capitalize-ai/sqlchat/pkg/tracing"
)

// ToolName identifies this tool in tool_call events.
const ToolName = "codeact_sql"

// maxObservationRows caps how many rows are echoed back to the model.
const maxObservationRows = 50

// Database executes read-only statements.
type Database interface {
	Execute(ctx context.Context, sql string) (*model.QueryResult, error)
	Dialect() string
}

// ResultCache stores results keyed by SQL text.
type ResultCache interface {
	Get(ctx context.Context, sql string) (*model.QueryResult, bool, error)
	Set(ctx context.Context, sql string, result *model.QueryResult) error
}

// Outcome summarises one Run for the calling agent.
type Outcome struct {
	SQL    string
	Result *model.QueryResult
	Err    string
	Cached bool
}

// Failed reports whether the run ended with an error event.
func (o *Outcome) Failed() bool { return o.Err != "" }

// Observation renders the outcome as the JSON tool output fed back to the model.
func (o *Outcome) Observation() string {
	payload := struct {
		SQL       string           `json:"sql"`
		Columns   []string         `json:"columns"`
		Rows      []map[string]any `json:"rows"`
		RowCount  int              `json:"row_count"`
		Truncated bool             `json:"truncated,omitempty"`
		Error     *string          `json:"error"`
	}{SQL: o.SQL, Columns: []string{}, Rows: []map[string]any{}}

	if o.Result != nil {
		payload.Columns = o.Result.Columns
		payload.Rows = o.Result.Rows
		payload.RowCount = o.Result.RowCount
		if len(payload.Rows) > maxObservationRows {
			payload.Rows = payload.Rows[:maxObservationRows]
			payload.Truncated = true
		}
	}
	if o.Err != "" {
		payload.Error = &o.Err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"sql":%q,"error":%q}`, o.SQL, err.Error())
	}
	return string(data)
}

// Executor is the SQL tool. It is safe for concurrent use; per-call state is
// carried by Run's arguments.
type Executor struct {
	db    Database
	cache ResultCache
	log   *logger.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(db Database, cache ResultCache, log *logger.Logger) *Executor {
	return &Executor{db: db, cache: cache, log: log.Named("codeact")}
}

// Dialect reports the dialect queries run against.
func (e *Executor) Dialect() string { return e.db.Dialect() }

// Run executes rawSQL on behalf of nlQuery. Every step's event is passed to
// emit before the next step begins. Domain failures become an error event and
// a failed Outcome; the returned error is non-nil only when emit fails.
func (e *Executor) Run(ctx context.Context, nlQuery, rawSQL string, emit func(model.AgentEvent) error) (*Outcome, error) {
	dialect := e.db.Dialect()
	ctx, span := tracing.Tracer().Start(ctx, "codeact.Run",
		trace.WithAttributes(attribute.String("db.system", dialect)))
	defer span.End()

	if err := emit(model.ToolCall(ToolName, nlQuery)); err != nil {
		return nil, err
	}

	sql := ExtractSQL(rawSQL)
	out := &Outcome{SQL: sql}
	span.SetAttributes(attribute.String("db.statement", sql))
	if err := emit(model.SQL(sql)); err != nil {
		return nil, err
	}

	cached, hit, err := e.cache.Get(ctx, sql)
	if err != nil {
		e.log.Warn("result cache read failed, treating as miss", zap.Error(err))
		hit = false
	}
	if hit {
		out.Result = cached
		out.Cached = true
		metrics.RecordSQLExecution(dialect, "cached")
		span.SetAttributes(attribute.Bool("cache.hit", true))

		if err := emit(model.Executing("Returning cached result...")); err != nil {
			return nil, err
		}
		return out, emit(model.Result(cached))
	}

	if err := emit(model.Executing(fmt.Sprintf("Running query on %s...", dialect))); err != nil {
		return nil, err
	}

	if err := VerifyReadOnly(sql); err != nil {
		var unsafe *UnsafeSQLError
		if errors.As(err, &unsafe) {
			e.log.Warn("rejected unsafe SQL", zap.String("keyword", unsafe.Keyword), logger.SQL(sql))
		}
		metrics.RecordSQLExecution(dialect, "rejected")
		return e.fail(out, span, err, emit)
	}

	start := time.Now()
	result, err := e.db.Execute(ctx, sql)
	metrics.SQLExecutionDuration.WithLabelValues(dialect).Observe(time.Since(start).Seconds())
	if err != nil {
		e.log.Error("query execution failed", logger.Dialect(dialect), logger.SQL(sql), zap.Error(err))
		metrics.RecordSQLExecution(dialect, "error")
		return e.fail(out, span, err, emit)
	}
	result = result.Normalize()

	if err := e.cache.Set(ctx, sql, result); err != nil {
		e.log.Warn("result cache write failed", zap.Error(err))
	}

	e.log.Info("query executed",
		logger.Dialect(dialect),
		zap.Int("row_count", result.RowCount),
		zap.Duration("duration", time.Since(start)),
	)
	metrics.RecordSQLExecution(dialect, "ok")
	out.Result = result
	return out, emit(model.Result(result))
}

func (e *Executor) fail(out *Outcome, span trace.Span, err error, emit func(model.AgentEvent) error) (*Outcome, error) {
	out.Err = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, out.Err)
	return out, emit(model.Error(out.Err))
}
