package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/geometry"
)

func TestEnrichTags(t *testing.T) {
	r := detection.Result{Components: []detection.Component{
		{ID: "a", Type: "unknown", Label: "TIC-205", Confidence: 0.9},
		{ID: "b", Type: "valve", Label: "unknown", Confidence: 0.8, Meta: map[string]any{"tag": "TV-205"}},
		{ID: "c", Type: "pump", Label: "Feed pump", Confidence: 0.9},
		{ID: "d", Type: "unknown", Label: "FIT", Confidence: 0.7},
		{ID: "e", Type: "unknown", Label: "FT-101", Confidence: 0.7},
	}}
	enrichTags(&r)

	assert.Equal(t, "instrument", r.Components[0].Type)
	assert.Equal(t, "valve", r.Components[1].Type)
	isa, ok := r.Components[0].Meta["isa"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Temperature Indicator Controller", isa["description"])
	assert.Equal(t, "205", isa["loop"])

	assert.NotContains(t, r.Components[2].Meta, "isa")
	// no loop number
	assert.NotContains(t, r.Components[3].Meta, "isa")
	assert.Equal(t, "unknown", r.Components[3].Type)

	require.Len(t, r.Metadata.ControlLoops, 2)
	assert.Equal(t, "F-101", r.Metadata.ControlLoops[0].Key)
	assert.Equal(t, []string{"e"}, r.Metadata.ControlLoops[0].Components)
	assert.Equal(t, "T-205", r.Metadata.ControlLoops[1].Key)
	assert.Equal(t, []string{"a", "b"}, r.Metadata.ControlLoops[1].Components)
}

func TestAssessQuality(t *testing.T) {
	r := detection.Result{
		Components: []detection.Component{
			{ID: "a", BBox: geometry.Box{0, 0, 0.1, 0.1}, Confidence: 0.95, Meta: map[string]any{"isa": map[string]any{}}},
			{ID: "b", BBox: geometry.Box{0.2, 0.2, 0.3, 0.3}, Confidence: 0.45},
		},
		Connections: []detection.Connection{{ID: "l", FromID: "a", ToID: "b"}},
	}
	assessQuality(&r)

	q := r.Metadata.Quality
	require.NotNil(t, q)
	assert.InDelta(t, 0.7, q.AverageConfidence, 1e-9)
	assert.InDelta(t, 0.5, q.ISACompleteness, 1e-9)
	assert.InDelta(t, 0.5, q.ConnectionCoverage, 1e-9)
	assert.InDelta(t, 0.5, q.DetectionQuality, 1e-9)
	assert.InDelta(t, 0.7*0.3+0.5*0.25+0.5*0.2+0.5*0.25, q.Score, 1e-9)
	assert.Equal(t, "excellent", r.Components[0].Meta["detection_quality"])
	assert.Equal(t, "poor", r.Components[1].Meta["detection_quality"])
}

func TestAssessQuality_Empty(t *testing.T) {
	r := detection.Empty()
	assessQuality(&r)
	require.NotNil(t, r.Metadata.Quality)
	assert.Zero(t, r.Metadata.Quality.Score)
}
