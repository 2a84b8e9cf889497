package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderOpenAI, Options{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = NewClient("Anthropic", Options{APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = NewClient(ProviderOpenAI, Options{})
	assert.Error(t, err)

	_, err = NewClient("mistral", Options{APIKey: "x"})
	assert.Error(t, err)
}

func TestOptionsApply(t *testing.T) {
	opts := Options{Model: "gpt-4o-mini", MaxTokens: 1024, Temperature: 0.2}

	model, maxTokens, temp := opts.apply(&CompletionRequest{})
	assert.Equal(t, "gpt-4o-mini", model)
	assert.Equal(t, 1024, maxTokens)
	assert.Equal(t, 0.2, temp)

	model, maxTokens, temp = opts.apply(&CompletionRequest{Model: "gpt-4", MaxTokens: 10, Temperature: 0.9})
	assert.Equal(t, "gpt-4", model)
	assert.Equal(t, 10, maxTokens)
	assert.Equal(t, 0.9, temp)

	_, maxTokens, _ = Options{}.apply(&CompletionRequest{})
	assert.Equal(t, defaultMaxTokens, maxTokens)
}

func TestFoldSystem(t *testing.T) {
	got := foldSystem([]ChatMessage{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleUser, Content: "again"},
		{Role: RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, []ChatMessage{
		{Role: RoleUser, Content: "be terse\n\nhi\n\nagain"},
		{Role: RoleAssistant, Content: "hello"},
	}, got)

	got = foldSystem([]ChatMessage{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleAssistant, Content: "earlier answer"},
	})
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "rules", got[0].Content)
	assert.Len(t, got, 2)
}
