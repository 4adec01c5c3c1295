package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowgraph/flowgraph/runid"
)

func msToTime(ms int64) time.Time { return time.UnixMilli(ms) }

// SQLiteStore persists checkpoints to a SQLite database via the pure-Go
// modernc.org/sqlite driver, grounded in the teacher's pattern of shipping a
// CGo-free embedded store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn (a file path or "file::memory:?cache=shared") and
// ensures the checkpoints table exists.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			current_node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			context TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			execution TEXT NOT NULL,
			pending_interaction TEXT,
			human_response TEXT,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON checkpoints(run_id);
	`)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) (string, error) {
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
	response, err := json.Marshal(cp.HumanResponse)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(cp.Metadata)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
			(id, run_id, graph_id, current_node_id, state, context, timestamp, execution, pending_interaction, human_response, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id, graph_id = excluded.graph_id,
			current_node_id = excluded.current_node_id, state = excluded.state,
			context = excluded.context, timestamp = excluded.timestamp,
			execution = excluded.execution, pending_interaction = excluded.pending_interaction,
			human_response = excluded.human_response, metadata = excluded.metadata
	`, cp.ID, cp.RunID, cp.GraphID, cp.CurrentNodeID, state, ec, cp.Timestamp.UnixMilli(), cp.Execution, pending, response, meta)
	if err != nil {
		return "", fmt.Errorf("checkpoint: save: %w", err)
	}
	return cp.ID, nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, graph_id, current_node_id, state, context, timestamp, execution, pending_interaction, human_response, metadata
		FROM checkpoints WHERE id = ?
	`, id)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	return cp, err
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListByRun(ctx context.Context, runID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, graph_id, current_node_id, state, context, timestamp, execution, pending_interaction, human_response, metadata
		FROM checkpoints WHERE run_id = ? ORDER BY timestamp ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID)
	return err
}

// rowScanner abstracts *sql.Row and *sql.Rows, which share Scan but not a
// common interface in database/sql.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var (
		cp                            Checkpoint
		state, ec, pending, resp, met []byte
		timestampMs                   int64
		execution                     string
	)
	if err := row.Scan(&cp.ID, &cp.RunID, &cp.GraphID, &cp.CurrentNodeID, &state, &ec, &timestampMs, &execution, &pending, &resp, &met); err != nil {
		return Checkpoint{}, err
	}
	cp.Execution = ExecutionState(execution)
	cp.Timestamp = msToTime(timestampMs)

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
	if len(met) > 0 {
		if err := json.Unmarshal(met, &cp.Metadata); err != nil {
			return Checkpoint{}, err
		}
	}
	return cp, nil
}
