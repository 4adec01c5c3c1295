package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNodeContext_WithStateDoesNotMutateOriginal verifies property 2: state
// threaded through a run is never mutated in place — WithState always
// returns a new NodeContext, leaving every NodeContext still reachable from
// an earlier point in the run (concurrent branches, replay, retries)
// observing its own unchanged snapshot.
func TestNodeContext_WithStateDoesNotMutateOriginal(t *testing.T) {
	nc1 := NodeContext{GraphID: "g1", RunID: "r1", State: map[string]any{"a": 1}}
	nc2 := nc1.WithState("b", 2)

	_, hasB := nc1.State["b"]
	assert.False(t, hasB, "original NodeContext.State must not gain the new key")
	assert.Equal(t, 1, nc1.State["a"])

	assert.Equal(t, 1, nc2.State["a"])
	assert.Equal(t, 2, nc2.State["b"])
}

func TestNodeContext_WithContextReplacesWithoutMutatingState(t *testing.T) {
	state := map[string]any{"a": 1}
	nc1 := NodeContext{GraphID: "g1", RunID: "r1", State: state}
	nc2 := nc1.WithContext(nc1.Context)

	assert.Equal(t, nc1.State, nc2.State)
}

func TestMetadataSizePolicy_FailRejectsOversizedMetadata(t *testing.T) {
	original := currentSizePolicy
	defer SetMetadataSizePolicy(original)
	SetMetadataSizePolicy(SizePolicyFail)

	big := make(map[string]any, 1)
	big["blob"] = make([]byte, metadataHardBytes+1)

	_, err := NewNodeResult("data", big)
	assert.Error(t, err)
}

func TestMetadataSizePolicy_IgnoreSkipsCheck(t *testing.T) {
	original := currentSizePolicy
	defer SetMetadataSizePolicy(original)
	SetMetadataSizePolicy(SizePolicyIgnore)

	big := make(map[string]any, 1)
	big["blob"] = make([]byte, metadataHardBytes+1)

	_, err := NewNodeResult("data", big)
	assert.NoError(t, err)
}
