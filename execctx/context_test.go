package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionContext_ImmutablePlus(t *testing.T) {
	c1 := Of(map[string]any{KeyTenantID: "acme"})
	c2 := c1.Plus(KeyUserID, "u-1")

	_, ok := c1.Get(KeyUserID)
	assert.False(t, ok, "original context must not gain the new key")

	v, ok := c2.Get(KeyUserID)
	assert.True(t, ok)
	assert.Equal(t, "u-1", v)
	assert.Equal(t, "acme", c2.TenantID())
}

func TestExecutionContext_PlusAll(t *testing.T) {
	c1 := Of(map[string]any{KeyTenantID: "acme"})
	c2 := c1.PlusAll(map[string]any{KeyUserID: "u-1", KeyCorrelationID: "corr-1"})

	assert.Equal(t, "acme", c2.TenantID())
	assert.Equal(t, "u-1", c2.UserID())
	assert.Equal(t, "corr-1", c2.CorrelationID())
}

func TestExecutionContext_GetAs(t *testing.T) {
	c := Of(map[string]any{"retries": 3})

	n, ok := GetAs[int](c, "retries")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = GetAs[string](c, "retries")
	assert.False(t, ok, "wrong type assertion must fail cleanly")
}

func TestExecutionContext_AmbientAccessor(t *testing.T) {
	ctx := WithAmbient(context.Background(), Of(map[string]any{KeyCorrelationID: "corr-xyz"}))

	got := Ambient(ctx)
	assert.Equal(t, "corr-xyz", got.CorrelationID())
}

func TestExecutionContext_ToMapIsDefensiveCopy(t *testing.T) {
	c := Of(map[string]any{KeyTenantID: "acme"})
	m := c.ToMap()
	m[KeyTenantID] = "mutated"

	assert.Equal(t, "acme", c.TenantID())
}
