package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const allEventsStream = "flowgraph:events:all"

// RedisBus is a durable Bus backed by Redis Streams: publish is an XADD to
// the per-runId stream (key = StreamID) plus a shared "all events" stream
// that backs SubscribeByType; subscribe runs a consumer group reader loop
// per call.
type RedisBus struct {
	client *redis.Client
	group  string
	dlq    *DeadLetterSink
}

// NewRedisBus wraps client. group names the consumer group every Subscribe
// call joins; pass a stable value per logical subscriber so restarts resume
// from their last acked offset rather than replaying from the start.
func NewRedisBus(client *redis.Client, group string, dlq *DeadLetterSink) *RedisBus {
	return &RedisBus{client: client, group: group, dlq: dlq}
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	values := map[string]any{"payload": payload, "event_type": event.EventType}

	pipe := b.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{Stream: event.StreamID, Values: values})
	pipe.XAdd(ctx, &redis.XAddArgs{Stream: allEventsStream, Values: values})
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBus) Subscribe(ctx context.Context, streamID string, fromVersion int64) (<-chan Event, error) {
	start := "0"
	if fromVersion > 0 {
		start = fmt.Sprintf("%d-0", fromVersion)
	}
	return b.readLoop(ctx, streamID, start, nil)
}

func (b *RedisBus) SubscribeByType(ctx context.Context, types ...string) (<-chan Event, error) {
	return b.readLoop(ctx, allEventsStream, "0", types)
}

func (b *RedisBus) readLoop(ctx context.Context, stream, start string, types []string) (<-chan Event, error) {
	consumer := fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	if err := b.client.XGroupCreateMkStream(ctx, stream, b.group, start).Err(); err != nil {
		// BUSYGROUP means the group already exists, which is the common case
		// on every Subscribe after the first.
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return nil, fmt.Errorf("eventbus: create consumer group: %w", err)
		}
	}

	out := make(chan Event, defaultBufferSize)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.group,
				Consumer: consumer,
				Streams:  []string{stream, ">"},
				Count:    32,
				Block:    2 * time.Second,
			}).Result()
			if err != nil {
				if err == redis.Nil || ctx.Err() != nil {
					continue
				}
				return
			}

			for _, s := range res {
				for _, msg := range s.Messages {
					event, ok := b.decode(ctx, stream, msg)
					b.client.XAck(ctx, stream, b.group, msg.ID)
					if !ok {
						continue
					}
					if len(types) > 0 && !containsType(types, event.EventType) {
						continue
					}
					select {
					case out <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) decode(ctx context.Context, stream string, msg redis.XMessage) (Event, bool) {
	raw, _ := msg.Values["payload"].(string)
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		if b.dlq != nil {
			b.dlq.Record(ctx, DeadLetterEntry{Stream: stream, Offset: 0, Reason: "undecodable payload: " + err.Error()})
		}
		return Event{}, false
	}
	return event, true
}

func containsType(types []string, t string) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func (b *RedisBus) Close() error { return nil }
