package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_ReplyLineage(t *testing.T) {
	m1 := New("user-1", KindText, RoleUser, "hello")

	m2 := m1.Reply("hi there", "agent-1")

	assert.Equal(t, m1.ID, m2.ParentID)
	assert.Equal(t, m1.ID, m2.Thread)
	assert.Equal(t, m1.ID, m2.ConversationID)
	assert.Equal(t, "agent-1", m2.From)
	assert.Equal(t, "user-1", m2.To)
}

func TestMessage_ReplyPreservesExistingLineage(t *testing.T) {
	m1 := New("user-1", KindText, RoleUser, "hello")
	m1.Thread = "thread-123"
	m1.ConversationID = "conv-456"

	m2 := m1.Reply("hi there", "agent-1")

	assert.Equal(t, "thread-123", m2.Thread)
	assert.Equal(t, "conv-456", m2.ConversationID)
	assert.Equal(t, m1.ID, m2.ParentID)
}

func TestMessage_ForwardPreservesLineage(t *testing.T) {
	m1 := New("user-1", KindText, RoleUser, "hello")
	m1.Thread = "thread-123"
	m1.ParentID = "parent-xyz"

	m2 := m1.Forward("agent-2")

	require.Equal(t, m1.ID, m2.ID)
	assert.Equal(t, "agent-2", m2.To)
	assert.Equal(t, m1.Thread, m2.Thread)
	assert.Equal(t, m1.ParentID, m2.ParentID)
	assert.Equal(t, m1.Content, m2.Content)
}

func TestMessage_ImmutableUpdatesDoNotMutateOriginal(t *testing.T) {
	m1 := New("user-1", KindText, RoleUser, "hello")
	m1.Data = map[string]any{"existing": true}

	m2 := m1.WithData("new_key", 42)

	_, hasNewKey := m1.Data["new_key"]
	assert.False(t, hasNewKey, "original Data must not be mutated")
	assert.Equal(t, 42, m2.Data["new_key"])
	assert.True(t, m2.Data["existing"].(bool))
}

func TestMessage_WithTTLDerivesExpiresAt(t *testing.T) {
	m1 := New("user-1", KindText, RoleUser, "hello")

	m2 := m1.WithTTL(5000)

	assert.Equal(t, int64(5000), m2.TTLMs)
	assert.True(t, m2.ExpiresAt.After(m2.CreatedAt))
}

func TestMessage_TransitionTo(t *testing.T) {
	m1 := New("user-1", KindText, RoleUser, "hello")
	require.Equal(t, StatePending, m1.State)

	m2 := m1.TransitionTo(StateRunning, "dispatched to agent")

	assert.Equal(t, StateRunning, m2.State)
	assert.Equal(t, StatePending, m1.State, "original must be unchanged")
	assert.Equal(t, "dispatched to agent", m2.Metadata["state_transition_reason"])
}

func TestMessage_WithTypeAndRole(t *testing.T) {
	m1 := New("user-1", KindText, RoleUser, "hello")

	m2 := m1.WithType(KindToolCall).WithRole(RoleTool)

	assert.Equal(t, KindToolCall, m2.Kind)
	assert.Equal(t, RoleTool, m2.Role)
	assert.Equal(t, KindText, m1.Kind)
	assert.Equal(t, RoleUser, m1.Role)
}
