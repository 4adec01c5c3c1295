package eventbus

import (
	"context"
	"sync"
)

const defaultBufferSize = 256

// subscriber is one live fan-out target: either stream-scoped or
// type-filtered, never both.
type subscriber struct {
	ch       chan Event
	streamID string   // empty means "all streams"
	types    []string // empty means "all types"
}

func (s *subscriber) matches(e Event) bool {
	if s.streamID != "" && e.StreamID != s.streamID {
		return false
	}
	if len(s.types) == 0 {
		return true
	}
	for _, t := range s.types {
		if t == e.EventType {
			return true
		}
	}
	return false
}

// MemoryBus is a single-process fan-out Bus: every live subscriber gets
// every matching event, at-least-once, dropping the oldest buffered event
// on backpressure.
type MemoryBus struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool

	dlq *DeadLetterSink

	// DroppedCount counts events evicted under backpressure. Nothing in this
	// module reads it; the metrics middleware does not export it.
	DroppedCount int64
}

// NewMemoryBus creates a MemoryBus. dlq may be nil; publishing never blocks
// on it regardless.
func NewMemoryBus(dlq *DeadLetterSink) *MemoryBus {
	return &MemoryBus{subscribers: make(map[*subscriber]struct{}), dlq: dlq}
}

func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBusClosed
	}

	for sub := range b.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop-oldest: evict one buffered event, then deliver the new one.
			select {
			case <-sub.ch:
				b.DroppedCount++
			default:
			}
			select {
			case sub.ch <- event:
			default:
				b.DroppedCount++
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, streamID string, _ int64) (<-chan Event, error) {
	return b.addSubscriber(ctx, &subscriber{ch: make(chan Event, defaultBufferSize), streamID: streamID})
}

func (b *MemoryBus) SubscribeByType(ctx context.Context, types ...string) (<-chan Event, error) {
	return b.addSubscriber(ctx, &subscriber{ch: make(chan Event, defaultBufferSize), types: types})
}

func (b *MemoryBus) addSubscriber(ctx context.Context, sub *subscriber) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errBusClosed
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
	return nil
}
