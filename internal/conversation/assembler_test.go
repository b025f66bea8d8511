package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/chaterr"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

func history(n int) []model.ChatMessage {
	msgs := make([]model.ChatMessage, n)
	for i := range msgs {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msgs[i] = model.ChatMessage{ID: fmt.Sprintf("m%d", i), Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return msgs
}

func TestTailLength(t *testing.T) {
	for length := 0; length <= 8; length++ {
		for n := -2; n <= 10; n++ {
			h := history(length)
			got := Tail(h, n)

			want := min(length, max(n, 0))
			require.Len(t, got, want, "L=%d N=%d", length, n)
			if want > 0 {
				assert.Equal(t, h[length-want:], got)
			}
		}
	}
}

func TestScenarioTrimWithMemory(t *testing.T) {
	h := history(6)

	ctx, err := Assemble(Input{
		History:             h,
		ContextLength:       4,
		Memory:              "User prefers metric units",
		DefaultSystemPrompt: "You are a helpful assistant.",
	})
	require.NoError(t, err)

	require.Len(t, ctx.Messages, 5)
	assert.Equal(t, model.RoleSystem, ctx.Messages[0].Role)
	assert.Equal(t, "Remembering information... User prefers metric units", ctx.Messages[0].Content)
	assert.Equal(t, h[2:], ctx.Messages[1:])
	assert.Equal(t, "You are a helpful assistant.", ctx.SystemPrompt)
}

func TestNonPositiveContextLength(t *testing.T) {
	for _, n := range []int{0, -1} {
		ctx, err := Assemble(Input{History: history(3), ContextLength: n, DefaultSystemPrompt: "p"})
		require.NoError(t, err)
		assert.Empty(t, ctx.Messages)
	}

	ctx, err := Assemble(Input{History: history(3), ContextLength: 0, Memory: "fact", DefaultSystemPrompt: "p"})
	require.NoError(t, err)
	require.Len(t, ctx.Messages, 1)
	assert.Equal(t, MemoryPrefix+"fact", ctx.Messages[0].Content)
}

func TestBlankMemoryIsSkipped(t *testing.T) {
	ctx, err := Assemble(Input{History: history(2), ContextLength: 4, Memory: "  ", DefaultSystemPrompt: "p"})
	require.NoError(t, err)
	assert.Len(t, ctx.Messages, 2)
}

func TestSystemPromptResolution(t *testing.T) {
	ctx, err := Assemble(Input{SystemPrompt: "Be brief.", DefaultSystemPrompt: "default"})
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", ctx.SystemPrompt)

	ctx, err = Assemble(Input{SystemPrompt: "   ", DefaultSystemPrompt: "default"})
	require.NoError(t, err)
	assert.Equal(t, "default", ctx.SystemPrompt)

	_, err = Assemble(Input{})
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindConfiguration))
}

func TestAssembleDoesNotMutateHistory(t *testing.T) {
	h := history(5)
	h[4].Attachments = []model.Attachment{{Name: "a.png", ContentType: "image/png", URL: "data:image/png;base64,AAAA"}}
	snapshot := make([]model.ChatMessage, len(h))
	copy(snapshot, h)

	ctx, err := Assemble(Input{History: h, ContextLength: 3, Memory: "m", DefaultSystemPrompt: "p"})
	require.NoError(t, err)

	ctx.Messages[1].Content = "changed"
	ctx.Messages[3].Attachments[0].Name = "changed.png"

	assert.Equal(t, snapshot, h)
	assert.Equal(t, "a.png", h[4].Attachments[0].Name)
}

func TestAssembleDeterministic(t *testing.T) {
	in := Input{History: history(7), ContextLength: 4, Memory: "m", DefaultSystemPrompt: "p"}

	a, err := Assemble(in)
	require.NoError(t, err)
	b, err := Assemble(in)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
