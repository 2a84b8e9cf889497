package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr bool
	}{
		{"valid", ChatRequest{Query: "How many rows?", SessionID: "s1"}, false},
		{"empty query", ChatRequest{Query: "", SessionID: "s1"}, true},
		{"whitespace query", ChatRequest{Query: "   \n\t", SessionID: "s1"}, true},
		{"max query", ChatRequest{Query: strings.Repeat("a", MaxQueryLength), SessionID: "s1"}, false},
		{"long query", ChatRequest{Query: strings.Repeat("a", MaxQueryLength+1), SessionID: "s1"}, true},
		{"multibyte query at limit", ChatRequest{Query: strings.Repeat("é", MaxQueryLength), SessionID: "s1"}, false},
		{"empty session", ChatRequest{Query: "q", SessionID: ""}, true},
		{"max session", ChatRequest{Query: "q", SessionID: strings.Repeat("s", MaxSessionIDLength)}, false},
		{"long session", ChatRequest{Query: "q", SessionID: strings.Repeat("s", MaxSessionIDLength+1)}, true},
		{"invalid utf8", ChatRequest{Query: "\xff\xfe", SessionID: "s1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResultEventAlwaysCarriesPayload(t *testing.T) {
	data, err := json.Marshal(Result(NewQueryResult(nil, nil)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","columns":[],"rows":[],"row_count":0}`, string(data))
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Done())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done"}`, string(data))

	data, err = json.Marshal(ToolCall("codeact_sql", "count rows"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_call","tool":"codeact_sql","input":"count rows"}`, string(data))
}

func TestNewQueryResultRowCount(t *testing.T) {
	r := NewQueryResult([]string{"n"}, []map[string]any{{"n": 1}, {"n": 2}})
	assert.Equal(t, 2, r.RowCount)

	broken := &QueryResult{Columns: []string{"n"}, Rows: []map[string]any{{"n": 1}}, RowCount: 7}
	assert.Equal(t, 1, broken.Normalize().RowCount)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, Result(NewQueryResult(nil, nil)).IsTerminal())
	assert.True(t, Error("boom").IsTerminal())
	assert.False(t, SQL("SELECT 1").IsTerminal())
}
