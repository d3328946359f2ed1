package remap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/geometry"
)

func TestToGlobal_RoundTrip(t *testing.T) {
	g, order, ok := ToGlobal(geometry.Box{0, 0, 1, 1}, geometry.Box{0.25, 0.25, 0.75, 0.75})
	require.True(t, ok)
	assert.Equal(t, Corner, order)
	assert.Equal(t, geometry.Box{0.25, 0.25, 0.75, 0.75}, g)
}

func TestToGlobal_FullTileIsIdentity(t *testing.T) {
	b := geometry.Box{0.1, 0.2, 0.3, 0.4}
	g, order, ok := ToGlobal(b, geometry.Full)
	require.True(t, ok)
	assert.Equal(t, Corner, order)
	assert.Equal(t, b, g)
}

func TestToGlobal_PicksSwappedWhenOnlyItFits(t *testing.T) {
	// As corners y1 lands at -0.275; read as [ymin,xmin,ymax,xmax] it fits.
	tile := geometry.Box{0.45, 0, 1, 0.55}
	g, order, ok := ToGlobal(geometry.Box{0.2, -0.5, 0.4, 0.1}, tile)
	require.True(t, ok)
	assert.Equal(t, Swapped, order)
	assert.InDeltaSlice(t, []float64{0.175, 0.11, 0.505, 0.22}, g[:], 1e-9)
}

func TestToGlobal_InvertedCornersAreClamped(t *testing.T) {
	// swapping axes never fixes an inverted width
	g, order, ok := ToGlobal(geometry.Box{0.6, 0.1, 0.2, 0.3}, geometry.Full)
	require.True(t, ok)
	assert.Equal(t, Clamped, order)
	assert.Equal(t, geometry.Box{0.2, 0.1, 0.6, 0.3}, g)
}

func TestToGlobal_CornerWinsTie(t *testing.T) {
	_, order, ok := ToGlobal(geometry.Box{0.1, 0.2, 0.3, 0.4}, geometry.Box{0, 0, 0.5, 0.5})
	require.True(t, ok)
	assert.Equal(t, Corner, order)
}

func TestToGlobal_Degenerate(t *testing.T) {
	_, _, ok := ToGlobal(geometry.Box{0.3, 0.3, 0.3, 0.5}, geometry.Full)
	assert.False(t, ok)
	_, _, ok = ToGlobal(geometry.Box{1.5, 1.5, 2, 2}, geometry.Full)
	assert.False(t, ok)
}

func TestComponents(t *testing.T) {
	comps := []detection.Component{
		{ID: "a", BBox: geometry.Box{0, 0, 0.5, 0.5}},
		{ID: "b", BBox: geometry.Box{0.2, 0.2, 0.2, 0.2}},
	}
	out, st := Components(comps, geometry.Box{0.5, 0.5, 1, 1}, "r1c1")
	require.Len(t, out, 1)
	assert.Equal(t, geometry.Box{0.5, 0.5, 0.75, 0.75}, out[0].BBox)
	assert.Equal(t, "r1c1", out[0].Meta["source_tile"])
	assert.Equal(t, "xyxy", out[0].Meta["bbox_order"])
	assert.Equal(t, []string{"b"}, st.Dropped)
	// input untouched
	assert.Nil(t, comps[0].Meta)
}
