package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowgraph/flowgraph/runid"
)

// RedisStore persists checkpoints as JSON strings in Redis, with a per-run
// sorted set (score = timestamp) indexing checkpoint ids for ListByRun.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. keyPrefix namespaces all keys
// this store writes (default "flowgraph:checkpoint" when empty).
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "flowgraph:checkpoint"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) cpKey(id string) string    { return fmt.Sprintf("%s:cp:%s", s.prefix, id) }
func (s *RedisStore) runKey(runID string) string { return fmt.Sprintf("%s:run:%s", s.prefix, runID) }

func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) (string, error) {
	if cp.ID == "" {
		cp.ID = runid.New()
	}
	encoded, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.cpKey(cp.ID), encoded, 0)
	pipe.ZAdd(ctx, s.runKey(cp.RunID), redis.Z{Score: float64(cp.Timestamp.UnixNano()), Member: cp.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("checkpoint: save: %w", err)
	}
	return cp.ID, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (Checkpoint, error) {
	raw, err := s.client.Get(ctx, s.cpKey(id)).Bytes()
	if err == redis.Nil {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	cp, err := s.Load(ctx, id)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.cpKey(id))
	pipe.ZRem(ctx, s.runKey(cp.RunID), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListByRun(ctx context.Context, runID string) ([]Checkpoint, error) {
	ids, err := s.client.ZRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Load(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *RedisStore) DeleteByRun(ctx context.Context, runID string) error {
	ids, err := s.client.ZRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.cpKey(id))
	}
	pipe.Del(ctx, s.runKey(runID))
	_, err = pipe.Exec(ctx)
	return err
}
