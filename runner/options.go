package runner

import (
	"time"

	"github.com/flowgraph/flowgraph/checkpoint"
	"github.com/flowgraph/flowgraph/eventbus"
	"github.com/flowgraph/flowgraph/graph"
)

// Option configures a Config via NewConfig, mirroring the teacher engine's
// functional-options surface (WithMaxSteps, WithDefaultNodeTimeout, …)
// extended with this runtime's checkpoint/event-bus/middleware knobs.
type Option func(*Config)

// NewConfig builds a Config starting from DefaultConfig and applying opts in
// order.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithMaxSteps bounds the number of node transitions a run may take.
func WithMaxSteps(n int) Option {
	return func(c *Config) { c.MaxSteps = n }
}

// WithDefaultNodeTimeout sets the per-node deadline applied when a node has
// no more specific timeout of its own.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(c *Config) { c.PerNodeTimeout = d }
}

// WithRunWallClockBudget sets the whole-run deadline.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(c *Config) { c.PerRunTimeout = d }
}

// WithCheckpointPolicy replaces the checkpoint save/retention policy.
func WithCheckpointPolicy(policy checkpoint.Config) Option {
	return func(c *Config) { c.CheckpointPolicy = policy }
}

// WithCheckpointStore sets the checkpoint backend.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(c *Config) { c.Store = store }
}

// WithEventBus sets the lifecycle-event transport.
func WithEventBus(bus eventbus.Bus) Option {
	return func(c *Config) { c.EventBus = bus }
}

// WithMiddleware appends ms to the middleware chain, which is listed
// outermost first: ms are added, in the order passed, inside whatever is
// already set.
func WithMiddleware(ms ...graph.Middleware) Option {
	return func(c *Config) { c.Middleware = append(c.Middleware, ms...) }
}

// WithCostTracker attaches a CostTracker fed by AgentNode token-usage
// metadata.
func WithCostTracker(tracker *CostTracker) Option {
	return func(c *Config) { c.CostTracker = tracker }
}

// WithReplay enables deterministic recorded-I/O replay against log. When
// mode is false, Recordable node results are captured into log instead of
// replayed from it.
func WithReplay(log *ReplayLog, mode bool, strict bool) Option {
	return func(c *Config) {
		c.ReplayLog = log
		c.ReplayMode = mode
		c.StrictReplay = strict
	}
}

// WithBackoff replaces the retry backoff policy.
func WithBackoff(b BackoffPolicy) Option {
	return func(c *Config) { c.Backoff = b }
}
