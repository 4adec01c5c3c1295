// Package message defines Message, the immutable unit of communication
// passed between hops of a graph run. All "mutators" return new values; the
// Message itself is never mutated in place.
package message

import (
	"time"

	"github.com/flowgraph/flowgraph/runid"
)

// Kind is the sum type of message payload shapes.
type Kind string

const (
	KindText          Kind = "TEXT"
	KindSystem        Kind = "SYSTEM"
	KindToolCall      Kind = "TOOL_CALL"
	KindToolResult    Kind = "TOOL_RESULT"
	KindError         Kind = "ERROR"
	KindData          Kind = "DATA"
	KindPrompt        Kind = "PROMPT"
	KindResult        Kind = "RESULT"
	KindWorkflowStart Kind = "WORKFLOW_START"
	KindWorkflowEnd   Kind = "WORKFLOW_END"
	KindInterrupt     Kind = "INTERRUPT"
	KindResume        Kind = "RESUME"
	KindImage         Kind = "IMAGE"
	KindDocument      Kind = "DOCUMENT"
	KindAudio         Kind = "AUDIO"
	KindVideo         Kind = "VIDEO"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleSystem    Role = "SYSTEM"
	RoleTool      Role = "TOOL"
	RoleAgent     Role = "AGENT"
)

// Priority orders messages for systems that schedule by urgency.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ExecutionState is the progress marker the runner advances a Message
// through as it flows through a graph.
type ExecutionState string

const (
	StatePending    ExecutionState = "PENDING"
	StateRunning    ExecutionState = "RUNNING"
	StateWaitingHit ExecutionState = "WAITING_HITL"
	StateCompleted  ExecutionState = "COMPLETED"
	StateFailed     ExecutionState = "FAILED"
	StateCancelled  ExecutionState = "CANCELLED"
)

// MediaItem references an out-of-band attachment (image/document/audio/video).
type MediaItem struct {
	URL      string
	MimeType string
	Name     string
}

// Message is the immutable unit of communication between hops.
type Message struct {
	// Identity
	ID             string
	CreatedAt      time.Time
	ConversationID string
	Thread         string
	ParentID       string

	// Addressing
	From string
	To   string

	Kind Kind
	Role Role

	// Payload
	Content  string
	Data     map[string]any
	Metadata map[string]string

	// Optional fields
	Priority  Priority
	Encrypted bool
	TTLMs     int64
	ExpiresAt time.Time
	Media     []MediaItem
	Mentions  []string

	State ExecutionState
}

// New creates a fresh Message with a generated ID and CreatedAt set to now.
// from is required by the data model, but New does not enforce it: callers
// that pass "" receive a Message with an empty From, and AgentNode does not
// reject such a message either.
func New(from string, kind Kind, role Role, content string) Message {
	now := time.Now()
	m := Message{
		ID:        runid.New(),
		CreatedAt: now,
		From:      from,
		Kind:      kind,
		Role:      role,
		Content:   content,
		State:     StatePending,
	}
	return m
}

func cloneData(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneMeta(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneMedia(src []MediaItem) []MediaItem {
	if src == nil {
		return nil
	}
	dst := make([]MediaItem, len(src))
	copy(dst, src)
	return dst
}

func cloneMentions(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// clone returns a shallow-immutable copy of m: map/slice fields are copied so
// that mutating the copy never affects m.
func (m Message) clone() Message {
	m.Data = cloneData(m.Data)
	m.Metadata = cloneMeta(m.Metadata)
	m.Media = cloneMedia(m.Media)
	m.Mentions = cloneMentions(m.Mentions)
	return m
}

// WithData returns a new Message with key set in Data.
func (m Message) WithData(key string, value any) Message {
	n := m.clone()
	if n.Data == nil {
		n.Data = make(map[string]any, 1)
	}
	n.Data[key] = value
	return n
}

// WithMetadata returns a new Message with key set in Metadata.
func (m Message) WithMetadata(key, value string) Message {
	n := m.clone()
	if n.Metadata == nil {
		n.Metadata = make(map[string]string, 1)
	}
	n.Metadata[key] = value
	return n
}

// WithType returns a new Message with its Kind replaced.
func (m Message) WithType(kind Kind) Message {
	n := m.clone()
	n.Kind = kind
	return n
}

// WithRole returns a new Message with its Role replaced.
func (m Message) WithRole(role Role) Message {
	n := m.clone()
	n.Role = role
	return n
}

// WithTTL returns a new Message with TTLMs set and ExpiresAt derived as
// CreatedAt + ttl.
func (m Message) WithTTL(ttlMs int64) Message {
	n := m.clone()
	n.TTLMs = ttlMs
	n.ExpiresAt = n.CreatedAt.Add(time.Duration(ttlMs) * time.Millisecond)
	return n
}

// TransitionTo returns a new Message with State updated. reason is recorded
// under the "state_transition_reason" metadata key when non-empty.
func (m Message) TransitionTo(state ExecutionState, reason string) Message {
	n := m.clone()
	n.State = state
	if reason != "" {
		if n.Metadata == nil {
			n.Metadata = make(map[string]string, 1)
		}
		n.Metadata["state_transition_reason"] = reason
	}
	return n
}

// Reply returns a new Message addressed back to m.From, produced by from,
// preserving thread lineage: thread = m.Thread or m.ID, parentID = m.ID,
// conversationID = m.ConversationID or m.ID.
func (m Message) Reply(content, from string) Message {
	thread := m.Thread
	if thread == "" {
		thread = m.ID
	}
	conv := m.ConversationID
	if conv == "" {
		conv = m.ID
	}
	reply := New(from, KindText, RoleAssistant, content)
	reply.To = m.From
	reply.Thread = thread
	reply.ParentID = m.ID
	reply.ConversationID = conv
	return reply
}

// Forward returns a new Message with only To changed; content and lineage
// (ID, ParentID, Thread, ConversationID) are preserved unchanged.
func (m Message) Forward(to string) Message {
	n := m.clone()
	n.To = to
	return n
}
