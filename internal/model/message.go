package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Role represents the role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry of a session's conversational memory.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat. It is also the value parked in
// the handoff store between submission and stream open.
type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

const (
	// MaxQueryLength is the longest accepted question, in characters.
	MaxQueryLength = 2000
	// MaxSessionIDLength is the longest accepted session id, in characters.
	MaxSessionIDLength = 128
)

// Validate checks the request bounds.
func (r ChatRequest) Validate() error {
	if !utf8.ValidString(r.Query) || !utf8.ValidString(r.SessionID) {
		return errors.New("query and session_id must be valid UTF-8")
	}
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query cannot be empty")
	}
	if utf8.RuneCountInString(r.Query) > MaxQueryLength {
		return errors.New("query exceeds maximum length")
	}
	if r.SessionID == "" {
		return errors.New("session_id cannot be empty")
	}
	if utf8.RuneCountInString(r.SessionID) > MaxSessionIDLength {
		return errors.New("session_id exceeds maximum length")
	}
	return nil
}

// ChatInitResponse tells the client where to open the event stream.
type ChatInitResponse struct {
	SessionID string `json:"session_id"`
	StreamURL string `json:"stream_url"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	API      string         `json:"api"`
	Database DatabaseHealth `json:"database"`
	Redis    string         `json:"redis"`
}

// DatabaseHealth reports the configured dialect and its reachability.
type DatabaseHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}
