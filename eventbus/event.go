// Package eventbus implements the lifecycle event contract:
// publish/subscribe of typed Events across pluggable transports (in-memory,
// Redis Streams, Kafka), each routing undeliverable payloads to a
// dead-letter sink.
package eventbus

import "time"

// Reserved event type strings the runner emits. The set is open; transports
// and subscribers must not assume this is exhaustive.
const (
	TypeGraphStarted    = "GraphStarted"
	TypeNodeStarted     = "NodeStarted"
	TypeNodeSucceeded   = "NodeSucceeded"
	TypeNodeFailed      = "NodeFailed"
	TypeNodeSkipped     = "NodeSkipped"
	TypeGraphPaused     = "GraphPaused"
	TypeGraphResumed    = "GraphResumed"
	TypeGraphFinished   = "GraphFinished"
	TypeCheckpointSaved = "CheckpointSaved"
	TypeHitlRequested   = "HitlRequested"
	TypeHitlResolved    = "HitlResolved"
)

// Metadata carries the routing/attribution envelope every Event requires.
type Metadata struct {
	UserID        string
	CorrelationID string
	CausationID   string
	TenantID      string
	SourceSystem  string
}

// Event is the envelope for every lifecycle signal the runner emits.
type Event struct {
	EventID   string
	EventType string
	StreamID  string
	Version   int64
	Timestamp time.Time
	Metadata  Metadata
	Payload   any
}
