package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone_IsIndependent(t *testing.T) {
	r := Result{
		Components:  []Component{{ID: "a", Meta: map[string]any{"k": "v"}}},
		Connections: []Connection{{ID: "c", FromID: "a", ToID: "b"}},
		Metadata:    Metadata{Quality: &Quality{Score: 0.5}},
	}
	r.Degrade("detect", "r0c0", "timeout")

	c := r.Clone()
	c.Components[0].Meta["k"] = "changed"
	c.Components[0].ID = "z"
	c.Connections[0].ToID = "x"
	c.Metadata.Quality.Score = 1
	c.Metadata.Degraded[0].Reason = "other"

	assert.Equal(t, "v", r.Components[0].Meta["k"])
	assert.Equal(t, "a", r.Components[0].ID)
	assert.Equal(t, "b", r.Connections[0].ToID)
	assert.Equal(t, 0.5, r.Metadata.Quality.Score)
	assert.Equal(t, "timeout", r.Metadata.Degraded[0].Reason)
}

func TestEmptyAndRecount(t *testing.T) {
	r := Empty()
	require.NotNil(t, r.Components)
	require.NotNil(t, r.Connections)

	r.Components = append(r.Components, Component{ID: "a"}, Component{ID: "b"})
	r.Recount()
	assert.Equal(t, 2, r.Metadata.TotalComponents)
	assert.Equal(t, 0, r.Metadata.TotalConnections)
}

func TestSetMeta(t *testing.T) {
	var c Component
	c.SetMeta("source_tile", "full")
	assert.Equal(t, "full", c.Meta["source_tile"])
	assert.Nil(t, CloneMeta(nil))
}
