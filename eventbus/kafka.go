package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"
)

// knownEventTypes backs SubscribeByType's default fan-out and Subscribe's
// cross-topic scan when a caller does not narrow to specific types: every
// reserved event type maps to its own topic.
var knownEventTypes = []string{
	TypeGraphStarted, TypeNodeStarted, TypeNodeSucceeded, TypeNodeFailed,
	TypeNodeSkipped, TypeGraphPaused, TypeGraphResumed, TypeGraphFinished,
	TypeCheckpointSaved, TypeHitlRequested, TypeHitlResolved,
}

func kafkaTopic(prefix, eventType string) string { return prefix + "." + eventType }

// KafkaBus is a durable Bus backed by Kafka: one topic per event class,
// partitioned by StreamID (runId), read through a consumer group so offsets
// survive restarts.
type KafkaBus struct {
	brokers []string
	prefix  string
	groupID string
	dlq     *DeadLetterSink

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaBus creates a KafkaBus. prefix namespaces topic names (e.g.
// "flowgraph.events"); groupID is the consumer group every Subscribe call
// joins.
func NewKafkaBus(brokers []string, prefix, groupID string, dlq *DeadLetterSink) *KafkaBus {
	return &KafkaBus{brokers: brokers, prefix: prefix, groupID: groupID, dlq: dlq, writers: make(map[string]*kafka.Writer)}
}

func (b *KafkaBus) writerFor(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(b.brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	b.writers[topic] = w
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	topic := kafkaTopic(b.prefix, event.EventType)
	return b.writerFor(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.StreamID),
		Value: payload,
	})
}

// Subscribe reads every known-type topic, filtering for messages keyed by
// streamID, since Kafka topics are partitioned by event class rather than
// by run.
func (b *KafkaBus) Subscribe(ctx context.Context, streamID string, _ int64) (<-chan Event, error) {
	return b.fanIn(ctx, knownEventTypes, func(e Event) bool { return e.StreamID == streamID })
}

func (b *KafkaBus) SubscribeByType(ctx context.Context, types ...string) (<-chan Event, error) {
	if len(types) == 0 {
		types = knownEventTypes
	}
	return b.fanIn(ctx, types, nil)
}

func (b *KafkaBus) fanIn(ctx context.Context, types []string, keep func(Event) bool) (<-chan Event, error) {
	out := make(chan Event, defaultBufferSize)
	var wg sync.WaitGroup

	for _, t := range types {
		topic := kafkaTopic(b.prefix, t)
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: b.brokers,
			Topic:   topic,
			GroupID: b.groupID,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()
			for {
				msg, err := reader.ReadMessage(ctx)
				if err != nil {
					return
				}
				var event Event
				if err := json.Unmarshal(msg.Value, &event); err != nil {
					if b.dlq != nil {
						b.dlq.Record(ctx, DeadLetterEntry{
							Topic: topic, Partition: int32(msg.Partition), Offset: msg.Offset,
							Reason: "undecodable payload: " + err.Error(),
						})
					}
					continue
				}
				if keep != nil && !keep(event) {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
