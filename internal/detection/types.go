// Package detection holds the data model shared by the analysis stages.
package detection

import "blueprintvision/internal/geometry"

type Component struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	BBox       geometry.Box   `json:"bbox"`
	Confidence float64        `json:"confidence"`
	Rotation   int            `json:"rotation"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type Connection struct {
	ID         string   `json:"id"`
	FromID     string   `json:"from_id"`
	ToID       string   `json:"to_id"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Degradation records a step that fell back instead of failing the analysis.
type Degradation struct {
	Stage  string `json:"stage"`
	Tile   string `json:"tile,omitempty"`
	Reason string `json:"reason"`
}

type Quality struct {
	AverageConfidence  float64 `json:"average_confidence"`
	ISACompleteness    float64 `json:"isa_completeness"`
	ConnectionCoverage float64 `json:"connection_coverage"`
	DetectionQuality   float64 `json:"detection_quality"`
	Score              float64 `json:"score"`
}

type ControlLoop struct {
	Key        string   `json:"key"`
	Variable   string   `json:"variable"`
	LoopNumber string   `json:"loop_number"`
	Components []string `json:"components"`
}

type Metadata struct {
	TotalComponents    int           `json:"total_components"`
	TotalConnections   int           `json:"total_connections"`
	BlueprintType      string        `json:"blueprint_type,omitempty"`
	Tiled              bool          `json:"tiled"`
	TileCount          int           `json:"tile_count"`
	Suppressed         int           `json:"suppressed"`
	DroppedComponents  int           `json:"dropped_components"`
	DroppedConnections int           `json:"dropped_connections"`
	Refined            bool          `json:"refined"`
	FromCache          bool          `json:"from_cache"`
	ProcessLog         string        `json:"process_log,omitempty"`
	Quality            *Quality      `json:"quality,omitempty"`
	ControlLoops       []ControlLoop `json:"control_loops,omitempty"`
	Degraded           []Degradation `json:"degraded,omitempty"`
}

type Result struct {
	Components  []Component  `json:"components"`
	Connections []Connection `json:"connections"`
	Metadata    Metadata     `json:"metadata"`
}

// Empty returns a usable result with no detections.
func Empty() Result {
	return Result{Components: []Component{}, Connections: []Connection{}}
}

// Degrade appends a degradation entry.
func (r *Result) Degrade(stage, tile, reason string) {
	r.Metadata.Degraded = append(r.Metadata.Degraded, Degradation{Stage: stage, Tile: tile, Reason: reason})
}

// Recount refreshes the component and connection totals.
func (r *Result) Recount() {
	r.Metadata.TotalComponents = len(r.Components)
	r.Metadata.TotalConnections = len(r.Connections)
}

// Clone deep-copies the slices and meta maps so cached results stay immutable.
func (r Result) Clone() Result {
	out := r
	out.Components = make([]Component, len(r.Components))
	for i, c := range r.Components {
		c.Meta = CloneMeta(c.Meta)
		out.Components[i] = c
	}
	out.Connections = make([]Connection, len(r.Connections))
	for i, c := range r.Connections {
		if c.Confidence != nil {
			v := *c.Confidence
			c.Confidence = &v
		}
		out.Connections[i] = c
	}
	out.Metadata.Degraded = append([]Degradation(nil), r.Metadata.Degraded...)
	if r.Metadata.ControlLoops != nil {
		out.Metadata.ControlLoops = make([]ControlLoop, len(r.Metadata.ControlLoops))
		for i, l := range r.Metadata.ControlLoops {
			l.Components = append([]string(nil), l.Components...)
			out.Metadata.ControlLoops[i] = l
		}
	}
	if r.Metadata.Quality != nil {
		q := *r.Metadata.Quality
		out.Metadata.Quality = &q
	}
	return out
}

// SetMeta writes key into c.Meta, allocating it on first use.
func (c *Component) SetMeta(key string, v any) {
	if c.Meta == nil {
		c.Meta = make(map[string]any)
	}
	c.Meta[key] = v
}

// CloneMeta copies m, descending into nested maps and slices.
func CloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneMeta(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}
