package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowgraph/flowgraph/runid"
)

// PostgresStore persists checkpoints to Postgres via pgx's connection pool,
// for deployments that already run Postgres as their system of record.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the checkpoints table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			current_node_id TEXT NOT NULL,
			state JSONB NOT NULL,
			context JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			execution TEXT NOT NULL,
			pending_interaction JSONB,
			human_response JSONB,
			metadata JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON checkpoints(run_id);
	`)
	return err
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Save(ctx context.Context, cp Checkpoint) (string, error) {
	if cp.ID == "" {
		cp.ID = runid.New()
	}
	state, err := json.Marshal(cp.State)
	if err != nil {
		return "", err
	}
	ec, err := json.Marshal(cp.Context)
	if err != nil {
		return "", err
	}
	pending, err := json.Marshal(cp.PendingInteraction)
	if err != nil {
		return "", err
	}
	resp, err := json.Marshal(cp.HumanResponse)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(cp.Metadata)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints
			(id, run_id, graph_id, current_node_id, state, context, timestamp, execution, pending_interaction, human_response, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			run_id = excluded.run_id, graph_id = excluded.graph_id,
			current_node_id = excluded.current_node_id, state = excluded.state,
			context = excluded.context, timestamp = excluded.timestamp,
			execution = excluded.execution, pending_interaction = excluded.pending_interaction,
			human_response = excluded.human_response, metadata = excluded.metadata
	`, cp.ID, cp.RunID, cp.GraphID, cp.CurrentNodeID, state, ec, cp.Timestamp, string(cp.Execution), pending, resp, meta)
	if err != nil {
		return "", fmt.Errorf("checkpoint: save: %w", err)
	}
	return cp.ID, nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, run_id, graph_id, current_node_id, state, context, timestamp, execution, pending_interaction, human_response, metadata
		FROM checkpoints WHERE id = $1
	`, id)
	cp, err := scanPGCheckpoint(row)
	if err == pgx.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	return cp, err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) ListByRun(ctx context.Context, runID string) ([]Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, graph_id, current_node_id, state, context, timestamp, execution, pending_interaction, human_response, metadata
		FROM checkpoints WHERE run_id = $1 ORDER BY timestamp ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanPGCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID)
	return err
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanPGCheckpoint(row pgScanner) (Checkpoint, error) {
	var (
		cp        Checkpoint
		state, ec, pending, resp, meta []byte
		execution string
	)
	if err := row.Scan(&cp.ID, &cp.RunID, &cp.GraphID, &cp.CurrentNodeID, &state, &ec, &cp.Timestamp, &execution, &pending, &resp, &meta); err != nil {
		return Checkpoint{}, err
	}
	cp.Execution = ExecutionState(execution)

	if err := json.Unmarshal(state, &cp.State); err != nil {
		return Checkpoint{}, err
	}
	if err := json.Unmarshal(ec, &cp.Context); err != nil {
		return Checkpoint{}, err
	}
	if len(pending) > 0 {
		if err := json.Unmarshal(pending, &cp.PendingInteraction); err != nil {
			return Checkpoint{}, err
		}
	}
	if len(resp) > 0 {
		if err := json.Unmarshal(resp, &cp.HumanResponse); err != nil {
			return Checkpoint{}, err
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &cp.Metadata); err != nil {
			return Checkpoint{}, err
		}
	}
	return cp, nil
}
