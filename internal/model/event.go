// Package model defines data structures shared by the chat pipeline.
package model

import "encoding/json"

// EventType discriminates AgentEvent variants on the wire.
type EventType string

const (
	EventPlan      EventType = "plan"
	EventThinking  EventType = "thinking"
	EventToolCall  EventType = "tool_call"
	EventSQL       EventType = "sql"
	EventExecuting EventType = "executing"
	EventResult    EventType = "result"
	EventToken     EventType = "token"
	EventAnswer    EventType = "answer"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

// AgentEvent is one element of the ordered stream sent to the client.
// Which fields are meaningful depends on Type:
//
//	plan, thinking, sql, executing, token, answer, error: Content
//	tool_call: Tool, Input
//	result: Columns, Rows, RowCount
//	done: none
type AgentEvent struct {
	Type     EventType        `json:"type"`
	Content  string           `json:"content,omitempty"`
	Tool     string           `json:"tool,omitempty"`
	Input    string           `json:"input,omitempty"`
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"rows,omitempty"`
	RowCount int              `json:"row_count,omitempty"`
}

// MarshalJSON keeps result payloads complete even when the result is empty,
// so clients always see columns, rows and row_count on a result event.
func (e AgentEvent) MarshalJSON() ([]byte, error) {
	if e.Type != EventResult {
		type plain AgentEvent
		return json.Marshal(plain(e))
	}

	columns := e.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := e.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return json.Marshal(struct {
		Type     EventType        `json:"type"`
		Columns  []string         `json:"columns"`
		Rows     []map[string]any `json:"rows"`
		RowCount int              `json:"row_count"`
	}{e.Type, columns, rows, e.RowCount})
}

// IsTerminal reports whether the event ends a tool invocation.
func (e AgentEvent) IsTerminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

func Plan(content string) AgentEvent      { return AgentEvent{Type: EventPlan, Content: content} }
func Thinking(content string) AgentEvent  { return AgentEvent{Type: EventThinking, Content: content} }
func SQL(content string) AgentEvent       { return AgentEvent{Type: EventSQL, Content: content} }
func Executing(content string) AgentEvent { return AgentEvent{Type: EventExecuting, Content: content} }
func Token(content string) AgentEvent     { return AgentEvent{Type: EventToken, Content: content} }
func Answer(content string) AgentEvent    { return AgentEvent{Type: EventAnswer, Content: content} }
func Error(content string) AgentEvent     { return AgentEvent{Type: EventError, Content: content} }
func Done() AgentEvent                    { return AgentEvent{Type: EventDone} }

// ToolCall announces a tool invocation with its natural-language input.
func ToolCall(tool, input string) AgentEvent {
	return AgentEvent{Type: EventToolCall, Tool: tool, Input: input}
}

// Result wraps a query result as a result event.
func Result(r *QueryResult) AgentEvent {
	return AgentEvent{
		Type:     EventResult,
		Columns:  r.Columns,
		Rows:     r.Rows,
		RowCount: len(r.Rows),
	}
}
