package agent

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/sqlchat/internal/model"
)

// Stream modes.
const (
	ModeReduce      = "reduce"
	ModePassthrough = "passthrough"
)

// Translator turns a raw feed into client events. A Translator holds the
// state of exactly one turn.
type Translator interface {
	// Handle consumes one raw event, emitting zero or more client events.
	Handle(ev RawEvent, emit func(model.AgentEvent) error) error
	// Finish is called once after the feed ends.
	Finish(emit func(model.AgentEvent) error) error
}

// NewTranslator returns a fresh translator for mode reading tool events from
// capture. Unknown modes fall back to reduce.
func NewTranslator(mode string, capture *Capture) Translator {
	if strings.EqualFold(mode, ModePassthrough) {
		return &PassthroughTranslator{capture: capture}
	}
	return &ReducingTranslator{capture: capture}
}

// ValidMode reports whether mode names a translator.
func ValidMode(mode string) bool {
	switch strings.ToLower(mode) {
	case ModeReduce, ModePassthrough:
		return true
	}
	return false
}

// ReducingTranslator buffers model text. Text before the first tool call
// becomes a single plan event, text between tool calls is dropped and text
// after the last tool call becomes a single answer event.
type ReducingTranslator struct {
	capture     *Capture
	buf         strings.Builder
	planEmitted bool
}

// Handle implements Translator.
func (t *ReducingTranslator) Handle(ev RawEvent, emit func(model.AgentEvent) error) error {
	switch ev.Kind {
	case KindToken:
		t.buf.WriteString(ev.Text)

	case KindToolStart:
		text := strings.TrimSpace(t.buf.String())
		t.buf.Reset()
		if text != "" && !t.planEmitted {
			t.planEmitted = true
			return emit(model.Plan(text))
		}

	case KindToolEnd:
		return drainTo(t.capture, emit)

	default:
		return fmt.Errorf("unknown raw event kind %q", ev.Kind)
	}
	return nil
}

// Finish implements Translator.
func (t *ReducingTranslator) Finish(emit func(model.AgentEvent) error) error {
	text := strings.TrimSpace(t.buf.String())
	t.buf.Reset()
	if text == "" {
		return nil
	}
	return emit(model.Answer(text))
}

// PassthroughTranslator forwards every token as it arrives and announces
// tool execution with a thinking event.
type PassthroughTranslator struct {
	capture *Capture
}

// Handle implements Translator.
func (t *PassthroughTranslator) Handle(ev RawEvent, emit func(model.AgentEvent) error) error {
	switch ev.Kind {
	case KindToken:
		if ev.Text == "" {
			return nil
		}
		return emit(model.Token(ev.Text))
	case KindToolStart:
		return emit(model.Thinking("Executing SQL on database..."))
	case KindToolEnd:
		return drainTo(t.capture, emit)
	default:
		return fmt.Errorf("unknown raw event kind %q", ev.Kind)
	}
}

// Finish implements Translator.
func (t *PassthroughTranslator) Finish(func(model.AgentEvent) error) error { return nil }

func drainTo(c *Capture, emit func(model.AgentEvent) error) error {
	if c == nil {
		return nil
	}
	for _, ev := range c.Drain() {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}
