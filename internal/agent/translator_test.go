package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/sqlchat/internal/model"
)

// feed runs events through tr, calling onToolEnd just before each tool-end so
// tests can stage what the tool captured.
func feed(t *testing.T, tr Translator, events []RawEvent, onToolEnd func()) []model.AgentEvent {
	t.Helper()
	var out []model.AgentEvent
	emit := func(ev model.AgentEvent) error {
		out = append(out, ev)
		return nil
	}
	for _, ev := range events {
		if ev.Kind == KindToolEnd && onToolEnd != nil {
			onToolEnd()
		}
		require.NoError(t, tr.Handle(ev, emit))
	}
	require.NoError(t, tr.Finish(emit))
	return out
}

func TestCapture(t *testing.T) {
	c := NewCapture(2)
	require.NoError(t, c.Push(model.SQL("SELECT 1")))
	require.NoError(t, c.Push(model.Executing("running")))
	assert.ErrorIs(t, c.Push(model.Error("overflow")), ErrCaptureFull)
	assert.Equal(t, 2, c.Len())

	got := c.Drain()
	assert.Equal(t, []model.AgentEvent{model.SQL("SELECT 1"), model.Executing("running")}, got)
	assert.Empty(t, c.Drain())

	require.NoError(t, c.Push(model.SQL("stale")))
	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestReducingTranslator_PlanThenTool(t *testing.T) {
	capture := NewCapture(8)
	sqlEv := model.SQL("SELECT count(*) FROM customers")
	resultEv := model.Result(model.NewQueryResult([]string{"count"}, []map[string]any{{"count": 4}}))

	out := feed(t, NewTranslator(ModeReduce, capture), []RawEvent{
		TokenEvent("Let's check"),
		TokenEvent(" tables."),
		ToolStartEvent(ExecutorToolName, "q"),
		ToolEndEvent(ExecutorToolName, "{}"),
	}, func() {
		require.NoError(t, capture.Push(sqlEv))
		require.NoError(t, capture.Push(resultEv))
	})

	assert.Equal(t, []model.AgentEvent{model.Plan("Let's check tables."), sqlEv, resultEv}, out)
}

func TestReducingTranslator_NoPlanBeforeTool(t *testing.T) {
	capture := NewCapture(8)
	errEv := model.Error("no such table")

	out := feed(t, NewTranslator(ModeReduce, capture), []RawEvent{
		ToolStartEvent(ExecutorToolName, "q"),
		ToolEndEvent(ExecutorToolName, "{}"),
		TokenEvent("Done."),
	}, func() {
		require.NoError(t, capture.Push(errEv))
	})

	assert.Equal(t, []model.AgentEvent{errEv, model.Answer("Done.")}, out)
}

func TestReducingTranslator_Shapes(t *testing.T) {
	t.Run("no tool calls", func(t *testing.T) {
		out := feed(t, NewTranslator(ModeReduce, NewCapture(4)), []RawEvent{
			TokenEvent("Hello"), TokenEvent(", there"),
		}, nil)
		assert.Equal(t, []model.AgentEvent{model.Answer("Hello, there")}, out)
	})

	t.Run("intermediate text is dropped", func(t *testing.T) {
		capture := NewCapture(4)
		n := 0
		out := feed(t, NewTranslator(ModeReduce, capture), []RawEvent{
			TokenEvent("Plan."),
			ToolStartEvent(ExecutorToolName, "q"),
			ToolEndEvent(ExecutorToolName, ""),
			TokenEvent("Hmm, retrying."),
			ToolStartEvent(ExecutorToolName, "q"),
			ToolEndEvent(ExecutorToolName, ""),
			TokenEvent("Answer."),
		}, func() {
			n++
			require.NoError(t, capture.Push(model.Executing("run")))
		})
		assert.Equal(t, 2, n)
		assert.Equal(t, []model.AgentEvent{
			model.Plan("Plan."),
			model.Executing("run"),
			model.Executing("run"),
			model.Answer("Answer."),
		}, out)
	})

	t.Run("no visible text", func(t *testing.T) {
		capture := NewCapture(4)
		out := feed(t, NewTranslator(ModeReduce, capture), []RawEvent{
			ToolStartEvent(ExecutorToolName, "q"),
			ToolEndEvent(ExecutorToolName, ""),
		}, func() {
			require.NoError(t, capture.Push(model.SQL("SELECT 1")))
		})
		assert.Equal(t, []model.AgentEvent{model.SQL("SELECT 1")}, out)
	})

	t.Run("whitespace only", func(t *testing.T) {
		out := feed(t, NewTranslator(ModeReduce, NewCapture(4)), []RawEvent{TokenEvent("  \n")}, nil)
		assert.Empty(t, out)
	})
}

func TestReducingTranslator_UnknownKind(t *testing.T) {
	tr := NewTranslator(ModeReduce, NewCapture(1))
	err := tr.Handle(RawEvent{Kind: "on_chain_start"}, func(model.AgentEvent) error { return nil })
	assert.Error(t, err)
}

func TestPassthroughTranslator(t *testing.T) {
	capture := NewCapture(4)
	out := feed(t, NewTranslator("PASSTHROUGH", capture), []RawEvent{
		TokenEvent("Checking"),
		TokenEvent(""),
		ToolStartEvent(ExecutorToolName, "q"),
		ToolEndEvent(ExecutorToolName, ""),
		TokenEvent("Done"),
	}, func() {
		require.NoError(t, capture.Push(model.SQL("SELECT 1")))
	})

	assert.Equal(t, []model.AgentEvent{
		model.Token("Checking"),
		model.Thinking("Executing SQL on database..."),
		model.SQL("SELECT 1"),
		model.Token("Done"),
	}, out)
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode("reduce"))
	assert.True(t, ValidMode("Passthrough"))
	assert.False(t, ValidMode("tokens"))
}
