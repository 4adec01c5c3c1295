package checkpoint

import (
	"context"
	"sort"
	"time"
)

// Config is the checkpoint save/retention policy.
type Config struct {
	// SaveEveryNNodes, if set, saves after every N successful node
	// executions.
	SaveEveryNNodes *int
	// SaveEveryNSeconds, if set, saves once at least this many seconds have
	// elapsed since the last save.
	SaveEveryNSeconds *int
	// MaxCheckpointsPerRun bounds how many checkpoints a run retains; on
	// exceed, the oldest RUNNING checkpoints are dropped first.
	MaxCheckpointsPerRun int
	// SaveOnError persists a checkpoint when a node fails.
	SaveOnError bool
}

// DefaultConfig mirrors the spec's stated defaults.
func DefaultConfig() Config {
	return Config{MaxCheckpointsPerRun: 10, SaveOnError: true}
}

// Tracker applies a Config's save cadence, holding the mutable counters a
// policy needs (nodes since last save, time of last save).
type Tracker struct {
	cfg           Config
	nodesSinceSave int
	lastSave       time.Time
}

// NewTracker creates a Tracker bound to cfg.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// ShouldSave reports whether a checkpoint should be written now, given that
// forced is true for durable transitions (WAITING_FOR_HUMAN, FAILED) which
// always save regardless of cadence.
func (t *Tracker) ShouldSave(forced bool) bool {
	if forced {
		return true
	}
	if t.cfg.SaveEveryNNodes != nil && t.nodesSinceSave >= *t.cfg.SaveEveryNNodes {
		return true
	}
	if t.cfg.SaveEveryNSeconds != nil {
		elapsed := time.Since(t.lastSave)
		if elapsed >= time.Duration(*t.cfg.SaveEveryNSeconds)*time.Second {
			return true
		}
	}
	return false
}

// RecordSave resets the tracker's cadence counters after a save.
func (t *Tracker) RecordSave() {
	t.nodesSinceSave = 0
	t.lastSave = time.Now()
}

// RecordNode advances the node counter without saving.
func (t *Tracker) RecordNode() {
	t.nodesSinceSave++
}

// Prune enforces MaxCheckpointsPerRun against store, dropping the oldest
// RUNNING checkpoints first. WAITING_FOR_HUMAN and FAILED checkpoints are
// never dropped.
func Prune(ctx context.Context, store Store, runID string, cfg Config) error {
	if cfg.MaxCheckpointsPerRun <= 0 {
		return nil
	}
	all, err := store.ListByRun(ctx, runID)
	if err != nil {
		return err
	}
	if len(all) <= cfg.MaxCheckpointsPerRun {
		return nil
	}

	var droppable []Checkpoint
	for _, cp := range all {
		if cp.Execution == StateRunning {
			droppable = append(droppable, cp)
		}
	}
	sort.Slice(droppable, func(i, j int) bool {
		return droppable[i].Timestamp.Before(droppable[j].Timestamp)
	})

	excess := len(all) - cfg.MaxCheckpointsPerRun
	for i := 0; i < excess && i < len(droppable); i++ {
		if err := store.Delete(ctx, droppable[i].ID); err != nil {
			return err
		}
	}
	return nil
}
