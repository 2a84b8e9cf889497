// Package agent drives the model-backed pipeline that plans a query, runs the
// SQL tool and summarises the result, and reduces its raw feed to the events
// clients see.
package agent

import (
	"context"
	"errors"

	"github.com/capitalize-ai/sqlchat/internal/model"
)

// ErrNoProvider is returned when no LLM client is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// RawKind tags an upstream engine event.
type RawKind string

const (
	KindToken     RawKind = "chat-model-token"
	KindToolStart RawKind = "tool-start"
	KindToolEnd   RawKind = "tool-end"
)

// RawEvent is one element of the engine's feed. Text is set on tokens, Tool
// and Input on tool-start, Output on tool-end.
type RawEvent struct {
	Kind   RawKind
	Text   string
	Tool   string
	Input  string
	Output string
}

// TokenEvent builds a chat-model-token event.
func TokenEvent(text string) RawEvent { return RawEvent{Kind: KindToken, Text: text} }

// ToolStartEvent builds a tool-start event.
func ToolStartEvent(tool, input string) RawEvent {
	return RawEvent{Kind: KindToolStart, Tool: tool, Input: input}
}

// ToolEndEvent builds a tool-end event.
func ToolEndEvent(tool, output string) RawEvent {
	return RawEvent{Kind: KindToolEnd, Tool: tool, Output: output}
}

// Invocation is everything an engine needs for one turn.
type Invocation struct {
	// Messages is the session history followed by the new user turn.
	Messages []model.Turn
	// ThreadID identifies the durable execution context of the session.
	ThreadID string
	// Capture receives the tool's events; the engine resets it before each
	// tool run and the translator drains it on tool-end.
	Capture *Capture
}

// Engine produces the raw feed for a turn. emit is called synchronously, in
// order; a non-nil error from emit aborts the run.
type Engine interface {
	Run(ctx context.Context, inv Invocation, emit func(RawEvent) error) error
}
