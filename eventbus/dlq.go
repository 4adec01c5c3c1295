package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errBusClosed = errors.New("eventbus: bus is closed")

// DeadLetterEntry records one undeliverable event along with where it came
// from and why it could not be processed.
type DeadLetterEntry struct {
	Event     Event
	Topic     string
	Stream    string
	Partition int32
	Offset    int64
	Reason    string
	FailedAt  time.Time
}

// DeadLetterSink collects entries that a transport could not deserialize or
// deliver. Recording a DLQ entry must never block the consumer loop that
// reported it; Record buffers in memory and returns immediately.
type DeadLetterSink struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

// NewDeadLetterSink creates an empty sink.
func NewDeadLetterSink() *DeadLetterSink {
	return &DeadLetterSink{}
}

// Record appends entry without blocking the caller.
func (d *DeadLetterSink) Record(_ context.Context, entry DeadLetterEntry) {
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now()
	}
	d.mu.Lock()
	d.entries = append(d.entries, entry)
	d.mu.Unlock()
}

// Entries returns a snapshot of everything recorded so far.
func (d *DeadLetterSink) Entries() []DeadLetterEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetterEntry, len(d.entries))
	copy(out, d.entries)
	return out
}
