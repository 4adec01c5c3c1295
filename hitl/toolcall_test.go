package hitl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestToolCallID_Idempotent verifies property 5: the same (runId, nodeId,
// invocationIndex) always derives the same tool_call_id.
func TestToolCallID_Idempotent(t *testing.T) {
	id1 := ToolCallID("run-1", "review", 0)
	id2 := ToolCallID("run-1", "review", 0)
	assert.Equal(t, id1, id2)
	assert.Equal(t, "hitl_run-1_review_0", id1)
}

func TestToolCallID_DiffersByInvocationIndex(t *testing.T) {
	id0 := ToolCallID("run-1", "review", 0)
	id1 := ToolCallID("run-1", "review", 1)
	assert.NotEqual(t, id0, id1)
}

func TestResponse_ValidSelectedOption(t *testing.T) {
	interaction := Interaction{
		Options: []Option{{ID: "approve"}, {ID: "reject"}},
	}
	assert.True(t, Response{SelectedOption: "approve"}.Valid(interaction))
	assert.False(t, Response{SelectedOption: "maybe"}.Valid(interaction))
}

func TestResponse_ValidFreeText(t *testing.T) {
	interaction := Interaction{AllowFreeText: true}
	assert.True(t, Response{Text: "looks good"}.Valid(interaction))
	assert.False(t, Response{Text: ""}.Valid(interaction))
}

func TestResponse_FreeTextDisallowedFallsBackToOptions(t *testing.T) {
	interaction := Interaction{AllowFreeText: false, Options: []Option{{ID: "approve"}}}
	assert.False(t, Response{Text: "anything"}.Valid(interaction))
	assert.True(t, Response{SelectedOption: "approve"}.Valid(interaction))
}

func TestInteraction_ExpiresAtOptional(t *testing.T) {
	now := time.Now()
	i := Interaction{PausedAt: now}
	assert.Nil(t, i.ExpiresAt)
}
