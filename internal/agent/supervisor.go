package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/sqlchat/internal/codeact"
	"github.com/capitalize-ai/sqlchat/internal/llm"
	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
	"github.com/capitalize-ai/sqlchat/pkg/metrics"
)

// ExecutorToolName is the tool name reported on tool-start and tool-end.
const ExecutorToolName = "sql-executor"

const maxThreads = 10000

// SQLTool runs one model-written statement, reporting its steps through emit.
type SQLTool interface {
	Run(ctx context.Context, nlQuery, rawSQL string, emit func(model.AgentEvent) error) (*codeact.Outcome, error)
	Dialect() string
}

// SchemaSource renders the schema the model writes queries against.
type SchemaSource interface {
	PromptContext(ctx context.Context) (string, error)
}

// SupervisorConfig configures a SupervisorEngine.
type SupervisorConfig struct {
	// MaxIterations bounds tool runs per turn, including retries after a
	// failed statement.
	MaxIterations int
}

// checkpoint is the per-thread state carried between turns.
type checkpoint struct {
	LastSQL   string
	Turns     int
	UpdatedAt time.Time
}

// SupervisorEngine is a two-role pipeline over a plain completion client. A
// SQL writer drafts the statement, the supervisor streams a plan, the tool
// runs (with corrective retries), and the supervisor streams a summary.
type SupervisorEngine struct {
	client        llm.Client
	tool          SQLTool
	schema        SchemaSource
	maxIterations int
	log           *logger.Logger

	mu          sync.Mutex
	checkpoints map[string]checkpoint
}

// NewSupervisorEngine creates an engine. A nil client is allowed; every run
// then fails with ErrNoProvider.
func NewSupervisorEngine(client llm.Client, tool SQLTool, schema SchemaSource, cfg SupervisorConfig, log *logger.Logger) *SupervisorEngine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	return &SupervisorEngine{
		client:        client,
		tool:          tool,
		schema:        schema,
		maxIterations: cfg.MaxIterations,
		log:           log.Named("supervisor"),
		checkpoints:   make(map[string]checkpoint),
	}
}

// Run implements Engine.
func (e *SupervisorEngine) Run(ctx context.Context, inv Invocation, emit func(RawEvent) error) error {
	if e.client == nil {
		return ErrNoProvider
	}
	question := lastUserContent(inv.Messages)
	if question == "" {
		return fmt.Errorf("invocation has no user message")
	}

	schemaContext, err := e.schema.PromptContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	dialect := e.tool.Dialect()
	cp := e.checkpoint(inv.ThreadID)
	history := toChatMessages(inv.Messages)
	writerPrompt := sqlWriterPrompt(dialect, schemaContext, cp)

	draft, err := e.complete(ctx, writerPrompt, history)
	if err != nil {
		return fmt.Errorf("sql writer failed: %w", err)
	}

	if isNoSQL(draft) {
		e.log.Debug("answering without a query",
			logger.ThreadID(inv.ThreadID),
			zap.Int("prior_turns", cp.Turns),
		)
		return e.stream(ctx, append(e.supervisorMessages(dialect, history),
			llm.ChatMessage{Role: llm.RoleSystem, Content: directAnswerInstruction}), emit)
	}

	sql := codeact.ExtractSQL(draft)

	planMessages := append(e.supervisorMessages(dialect, history),
		llm.ChatMessage{Role: llm.RoleSystem, Content: fmt.Sprintf(planInstruction, sql)})
	if err := e.stream(ctx, planMessages, emit); err != nil {
		return err
	}

	var outcome *codeact.Outcome
	for attempt := 1; attempt <= e.maxIterations; attempt++ {
		outcome, err = e.runTool(ctx, inv.Capture, question, sql, emit)
		if err != nil {
			return err
		}
		if !outcome.Failed() || attempt == e.maxIterations {
			break
		}

		e.log.Info("retrying failed statement",
			logger.ThreadID(inv.ThreadID),
			zap.Int("attempt", attempt),
			zap.String("error", outcome.Err),
		)
		retry := append(append([]llm.ChatMessage{}, history...),
			llm.ChatMessage{Role: llm.RoleAssistant, Content: "```sql\n" + outcome.SQL + "\n```"},
			llm.ChatMessage{Role: llm.RoleUser, Content: fmt.Sprintf(retryInstruction, outcome.SQL, outcome.Err)},
		)
		draft, err = e.complete(ctx, writerPrompt, retry)
		if err != nil {
			return fmt.Errorf("sql writer failed: %w", err)
		}
		if isNoSQL(draft) {
			break
		}
		sql = codeact.ExtractSQL(draft)
	}

	e.remember(inv.ThreadID, outcome)

	summary := append(e.supervisorMessages(dialect, history),
		llm.ChatMessage{Role: llm.RoleUser, Content: fmt.Sprintf(summaryInstruction, outcome.Observation())})
	return e.stream(ctx, summary, emit)
}

func (e *SupervisorEngine) runTool(ctx context.Context, capture *Capture, question, sql string, emit func(RawEvent) error) (*codeact.Outcome, error) {
	if err := emit(ToolStartEvent(ExecutorToolName, question)); err != nil {
		return nil, err
	}

	push := func(model.AgentEvent) error { return nil }
	if capture != nil {
		capture.Reset()
		push = capture.Push
	}

	outcome, err := e.tool.Run(ctx, question, sql, push)
	if err != nil {
		return nil, fmt.Errorf("sql tool failed: %w", err)
	}

	if err := emit(ToolEndEvent(ExecutorToolName, outcome.Observation())); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (e *SupervisorEngine) complete(ctx context.Context, system string, messages []llm.ChatMessage) (string, error) {
	req := &llm.CompletionRequest{
		Messages: append([]llm.ChatMessage{{Role: llm.RoleSystem, Content: system}}, messages...),
	}
	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	metrics.LLMTokensTotal.WithLabelValues(resp.Model, "in").Add(float64(resp.TokensIn))
	metrics.LLMTokensTotal.WithLabelValues(resp.Model, "out").Add(float64(resp.TokensOut))
	return resp.Content, nil
}

func (e *SupervisorEngine) stream(ctx context.Context, messages []llm.ChatMessage, emit func(RawEvent) error) error {
	start := time.Now()
	resp, err := e.client.CompleteStream(ctx, &llm.CompletionRequest{Messages: messages, Stream: true},
		func(token string, _ int) error {
			return emit(TokenEvent(token))
		})
	if err != nil {
		metrics.LLMStreamDuration.WithLabelValues(e.client.Name(), "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("llm stream failed: %w", err)
	}
	metrics.RecordLLMStream(resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return nil
}

func (e *SupervisorEngine) supervisorMessages(dialect string, history []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history)+2)
	out = append(out, llm.ChatMessage{Role: llm.RoleSystem, Content: supervisorPrompt(dialect)})
	return append(out, history...)
}

func (e *SupervisorEngine) checkpoint(threadID string) checkpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpoints[threadID]
}

func (e *SupervisorEngine) remember(threadID string, outcome *codeact.Outcome) {
	if threadID == "" || outcome == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.checkpoints[threadID]
	if !exists && len(e.checkpoints) >= maxThreads {
		e.evictOldestLocked()
	}
	cp.Turns++
	cp.UpdatedAt = time.Now()
	if !outcome.Failed() {
		cp.LastSQL = outcome.SQL
	}
	e.checkpoints[threadID] = cp
}

func (e *SupervisorEngine) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, cp := range e.checkpoints {
		if oldestID == "" || cp.UpdatedAt.Before(oldest) {
			oldestID, oldest = id, cp.UpdatedAt
		}
	}
	delete(e.checkpoints, oldestID)
}

func lastUserContent(turns []model.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

func toChatMessages(turns []model.Turn) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(turns))
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		out = append(out, llm.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	return out
}
