// Package execctx implements ExecutionContext: a small immutable mapping of
// string keys to arbitrary values (key order is not kept), propagated through a run and
// made transparently available to code executing within it via a
// context.Context accessor (Go's task-local mechanism).
package execctx

import "context"

// Canonical reserved keys, honored across the runner, middleware, and event
// bus.
const (
	KeyTenantID      = "tenantId"
	KeyUserID        = "userId"
	KeyCorrelationID = "correlationId"
)

// ExecutionContext is an immutable key-value carrier. All mutators return a
// new ExecutionContext; the receiver is never modified.
type ExecutionContext struct {
	values map[string]any
}

// Empty returns an ExecutionContext with no entries.
func Empty() ExecutionContext {
	return ExecutionContext{}
}

// Of builds an ExecutionContext from an existing map, copying it so later
// mutation of m does not leak into the returned context.
func Of(m map[string]any) ExecutionContext {
	if len(m) == 0 {
		return Empty()
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return ExecutionContext{values: cp}
}

// Get returns the value stored at k, if any.
func (c ExecutionContext) Get(k string) (any, bool) {
	v, ok := c.values[k]
	return v, ok
}

// GetString is a convenience accessor for the common case of string-valued
// canonical keys (tenantId, userId, correlationId).
func (c ExecutionContext) GetString(k string) string {
	v, ok := c.values[k]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Plus returns a new ExecutionContext with k set to v, leaving the receiver
// untouched.
func (c ExecutionContext) Plus(k string, v any) ExecutionContext {
	next := make(map[string]any, len(c.values)+1)
	for key, val := range c.values {
		next[key] = val
	}
	next[k] = v
	return ExecutionContext{values: next}
}

// PlusAll returns a new ExecutionContext with every key of m merged in,
// overwriting any existing keys of the same name.
func (c ExecutionContext) PlusAll(m map[string]any) ExecutionContext {
	if len(m) == 0 {
		return c
	}
	next := make(map[string]any, len(c.values)+len(m))
	for key, val := range c.values {
		next[key] = val
	}
	for key, val := range m {
		next[key] = val
	}
	return ExecutionContext{values: next}
}

// ToMap returns a defensive copy of the context as a plain map.
func (c ExecutionContext) ToMap() map[string]any {
	cp := make(map[string]any, len(c.values))
	for k, v := range c.values {
		cp[k] = v
	}
	return cp
}

// GetAs retrieves the value stored at k and type-asserts it to T, returning
// the zero value and false if the key is absent or holds a different type.
func GetAs[T any](c ExecutionContext, k string) (T, bool) {
	var zero T
	v, ok := c.values[k]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// TenantID, UserID, and CorrelationID are convenience accessors for the
// canonical reserved keys.
func (c ExecutionContext) TenantID() string      { return c.GetString(KeyTenantID) }
func (c ExecutionContext) UserID() string        { return c.GetString(KeyUserID) }
func (c ExecutionContext) CorrelationID() string { return c.GetString(KeyCorrelationID) }

// ambientKey is the private context.Context key used to install the current
// ExecutionContext for the duration of a run, so that code reached from the
// run (agents, tools) can read it via Ambient without it being passed as an
// explicit parameter.
type ambientKey struct{}

// WithAmbient installs ec into ctx for the duration of the returned context.
// The runner calls this once at run start and relies on the caller's ctx
// scope to revert it on return (a plain context.Context value is already
// scoped to its call tree, so no explicit teardown step is needed).
func WithAmbient(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, ambientKey{}, ec)
}

// Ambient retrieves the ExecutionContext installed by WithAmbient, or an
// Empty one if none was installed.
func Ambient(ctx context.Context) ExecutionContext {
	if v, ok := ctx.Value(ambientKey{}).(ExecutionContext); ok {
		return v
	}
	return Empty()
}

// PromotableKeys lists the NodeResult.Metadata keys promoted into
// ExecutionContext after a successful node execution. There is no per-run
// or per-middleware hook to extend it; the runner reads this package
// variable directly.
var PromotableKeys = []string{KeyTenantID, KeyUserID, KeyCorrelationID}
