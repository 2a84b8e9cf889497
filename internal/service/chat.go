package service

import (
	"container/list"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/sqlchat/internal/agent"
	"github.com/capitalize-ai/sqlchat/internal/model"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
	"github.com/capitalize-ai/sqlchat/pkg/metrics"
	"github.com/capitalize-ai/sqlchat/pkg/tracing"
)

// HistoryStore persists the turns of a session.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]model.Turn, error)
	Save(ctx context.Context, sessionID string, turns []model.Turn) error
}

// ChatConfig configures a ChatService.
type ChatConfig struct {
	// StreamMode selects the translator: reduce or passthrough.
	StreamMode string
	// CaptureSize bounds the tool events buffered per tool run.
	CaptureSize int
	// MaxThreads bounds the remembered session threads. The least recently
	// used session loses its thread first.
	MaxThreads int
}

// DefaultMaxThreads is the thread cap used when ChatConfig.MaxThreads is unset.
const DefaultMaxThreads = 10000

type threadEntry struct {
	sessionID string
	threadID  string
}

// ChatService runs chat turns: it loads history, drives the engine through a
// per-turn translator, persists the new history and always finishes with a
// done event. One ChatService serves the whole process; everything mutable
// about a turn lives in Run's frame.
type ChatService struct {
	engine  agent.Engine
	history HistoryStore
	cfg     ChatConfig
	logger  *logger.Logger

	mu      sync.Mutex
	threads map[string]*list.Element
	lru     *list.List
	newID   func() string
}

// NewChatService creates a new chat service.
func NewChatService(engine agent.Engine, history HistoryStore, cfg ChatConfig, log *logger.Logger) *ChatService {
	if cfg.StreamMode == "" {
		cfg.StreamMode = agent.ModeReduce
	}
	if cfg.CaptureSize <= 0 {
		cfg.CaptureSize = agent.DefaultCaptureSize
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = DefaultMaxThreads
	}
	return &ChatService{
		engine:  engine,
		history: history,
		cfg:     cfg,
		logger:  log,
		threads: make(map[string]*list.Element),
		lru:     list.New(),
		newID:   uuid.NewString,
	}
}

// ThreadID returns the engine thread for sessionID, creating it on first use.
// At most MaxThreads sessions keep a thread; the least recently used one is
// forgotten first and gets a fresh thread if it comes back.
func (s *ChatService) ThreadID(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.threads[sessionID]; ok {
		s.lru.MoveToFront(el)
		return el.Value.(*threadEntry).threadID
	}

	for s.lru.Len() >= s.cfg.MaxThreads {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.threads, oldest.Value.(*threadEntry).sessionID)
	}

	entry := &threadEntry{sessionID: sessionID, threadID: s.newID()}
	s.threads[sessionID] = s.lru.PushFront(entry)
	return entry.threadID
}

// threadCount reports how many sessions currently hold a thread.
func (s *ChatService) threadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// sinkError marks failures of the caller's emit function.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Run executes one turn, passing every client event to emit in order. Engine
// and translation failures are reported as an error event followed by done.
// The returned error is non-nil only when emit itself fails, in which case no
// further events are attempted.
func (s *ChatService) Run(ctx context.Context, query, sessionID string, emit func(model.AgentEvent) error) error {
	start := time.Now()
	threadID := s.ThreadID(sessionID)
	log := s.logger.ForTurn(sessionID, threadID)

	ctx, span := tracing.Tracer().Start(ctx, "chat.turn")
	span.SetAttributes(
		attribute.String("chat.session_id", sessionID),
		attribute.String("chat.thread_id", threadID),
		attribute.String("chat.stream_mode", s.cfg.StreamMode),
	)
	defer span.End()

	out := func(ev model.AgentEvent) error {
		if err := emit(ev); err != nil {
			return &sinkError{err: err}
		}
		return nil
	}

	if err := out(model.Thinking("Analyzing your question...")); err != nil {
		return s.abandon(log, err)
	}

	history, err := s.history.Load(ctx, sessionID)
	if err != nil {
		log.Warn("failed to load history, starting fresh", zap.Error(err))
		history = nil
	}
	messages := append(append(make([]model.Turn, 0, len(history)+2), history...),
		model.Turn{Role: model.RoleUser, Content: query})

	capture := agent.NewCapture(s.cfg.CaptureSize)
	translator := agent.NewTranslator(s.cfg.StreamMode, capture)
	var response strings.Builder

	err = s.engine.Run(ctx, agent.Invocation{
		Messages: messages,
		ThreadID: threadID,
		Capture:  capture,
	}, func(ev agent.RawEvent) error {
		if ev.Kind == agent.KindToken {
			response.WriteString(ev.Text)
		}
		return translator.Handle(ev, out)
	})
	if err == nil {
		err = translator.Finish(out)
	}

	var sink *sinkError
	if errors.As(err, &sink) {
		return s.abandon(log, sink.err)
	}

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("chat turn failed", zap.Error(err))
		if err := out(model.Error(err.Error())); err != nil {
			return s.abandon(log, err)
		}
	} else {
		turns := append(messages, model.Turn{Role: model.RoleAssistant, Content: response.String()})
		if err := s.history.Save(ctx, sessionID, turns); err != nil {
			log.Error("failed to save history", zap.Error(err))
		}
	}

	metrics.TurnDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	log.Info("chat turn completed",
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)),
	)

	if err := out(model.Done()); err != nil {
		return s.abandon(log, err)
	}
	return nil
}

func (s *ChatService) abandon(log *logger.Logger, err error) error {
	var sink *sinkError
	if errors.As(err, &sink) {
		err = sink.err
	}
	log.Info("client went away, abandoning turn", zap.Error(err))
	return err
}
