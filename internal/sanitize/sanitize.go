// Package sanitize turns raw vision-model replies into detections. Replies
// are untrusted: fenced, over-precise, on a 0-1000 scale, or partly missing.
package sanitize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/geometry"
	"blueprintvision/internal/util/jsonutil"
)

var ErrUnparsable = errors.New("unparsable model reply")

const (
	DefaultConfidence = 0.5
	legacyScale       = 1000.0
)

var (
	bboxKeys   = []string{"bbox", "bbox_2d", "box_2d", "box"}
	labelKeys  = []string{"label", "tag", "text", "name"}
	fromKeys   = []string{"from_id", "from", "source", "source_id"}
	toKeys     = []string{"to_id", "to", "target", "target_id"}
	metaFields = []string{"description", "reasoning", "tag"}
)

type Options struct {
	// Namespace prefixes generated ids, e.g. "r0c1-" gives "r0c1-comp-3".
	Namespace string
}

// Parse decodes raw into a result whose boxes are still in the space the
// model answered in. On failure the returned result is empty but usable.
func Parse(raw string, opts Options) (detection.Result, error) {
	out := detection.Empty()
	text := jsonutil.TruncateLongFractions(jsonutil.StripFences(raw))
	if text == "" {
		return out, fmt.Errorf("%w: empty reply", ErrUnparsable)
	}
	var root any
	if err := jsonutil.UnmarshalFlex([]byte(text), &root); err != nil {
		return out, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	// a JSON string holding the document
	if s, ok := root.(string); ok {
		var inner any
		if json.Unmarshal([]byte(jsonutil.TruncateLongFractions(jsonutil.StripFences(s))), &inner) == nil {
			root = inner
		}
	}

	var rawComps, rawConns []any
	switch v := root.(type) {
	case []any:
		rawComps = v
	case map[string]any:
		rawComps = firstList(v, "components", "entities", "detections")
		rawConns = firstList(v, "connections", "edges")
		out.Metadata.ProcessLog = processLog(v)
	default:
		return out, fmt.Errorf("%w: unexpected root %T", ErrUnparsable, root)
	}

	seen := make(map[string]bool, len(rawComps))
	for i, rc := range rawComps {
		m, ok := rc.(map[string]any)
		if !ok {
			out.Metadata.DroppedComponents++
			continue
		}
		c, ok := component(m, fmt.Sprintf("%scomp-%d", opts.Namespace, i))
		if !ok {
			out.Metadata.DroppedComponents++
			continue
		}
		if seen[c.ID] {
			c.ID = fmt.Sprintf("%s-%d", c.ID, i)
		}
		seen[c.ID] = true
		out.Components = append(out.Components, c)
	}

	for i, rc := range rawConns {
		m, ok := rc.(map[string]any)
		if !ok {
			out.Metadata.DroppedConnections++
			continue
		}
		c, ok := connection(m, fmt.Sprintf("%sconn-%d", opts.Namespace, i))
		if !ok {
			out.Metadata.DroppedConnections++
			continue
		}
		out.Connections = append(out.Connections, c)
	}
	out.Recount()
	return out, nil
}

func component(m map[string]any, fallbackID string) (detection.Component, bool) {
	box, ok := boxFrom(m)
	if !ok {
		return detection.Component{}, false
	}
	c := detection.Component{
		ID:         firstNonEmpty(idString(m["id"]), fallbackID),
		Type:       firstNonEmpty(str(m["type"]), "unknown"),
		Label:      "unknown",
		BBox:       box,
		Confidence: DefaultConfidence,
	}
	for _, k := range labelKeys {
		if s := str(m[k]); s != "" {
			c.Label = s
			break
		}
	}
	if f, ok := confidence(m["confidence"]); ok {
		c.Confidence = f
	}
	if f, ok := number(m["rotation"]); ok {
		c.Rotation = snapRotation(f)
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		for k, v := range meta {
			c.SetMeta(k, v)
		}
	}
	for _, k := range metaFields {
		if s := str(m[k]); s != "" {
			c.SetMeta(k, s)
		}
	}
	return c, true
}

func connection(m map[string]any, fallbackID string) (detection.Connection, bool) {
	from, to := "", ""
	for _, k := range fromKeys {
		if from = idString(m[k]); from != "" {
			break
		}
	}
	for _, k := range toKeys {
		if to = idString(m[k]); to != "" {
			break
		}
	}
	if from == "" || to == "" {
		return detection.Connection{}, false
	}
	c := detection.Connection{
		ID:     firstNonEmpty(idString(m["id"]), fallbackID),
		FromID: from,
		ToID:   to,
		Type:   firstNonEmpty(str(m["type"]), "unknown"),
	}
	if f, ok := confidence(m["confidence"]); ok {
		c.Confidence = &f
	}
	return c, true
}

// boxFrom reads the first usable box key, falling back to a polygon, and
// rescales legacy 0-1000 coordinates.
func boxFrom(m map[string]any) (geometry.Box, bool) {
	var box geometry.Box
	found := false
	for _, k := range bboxKeys {
		if nums, ok := numbers(m[k]); ok && len(nums) == 4 {
			copy(box[:], nums)
			found = true
			break
		}
	}
	if !found {
		pts, ok := polygonPoints(m["polygon"])
		if !ok {
			return box, false
		}
		if box, found = geometry.Bounds(pts); !found {
			return box, false
		}
	}
	for _, v := range box {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return box, false
		}
	}
	if box[0] > 1 || box[1] > 1 || box[2] > 1 || box[3] > 1 {
		for i := range box {
			box[i] /= legacyScale
		}
	}
	return box, true
}

// polygonPoints accepts a flat [x,y,x,y...] list or a list of [x,y] pairs.
func polygonPoints(v any) ([]float64, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	if flat, ok := numbers(list); ok {
		return flat, true
	}
	pts := make([]float64, 0, len(list)*2)
	for _, p := range list {
		pair, ok := numbers(p)
		if !ok || len(pair) != 2 {
			return nil, false
		}
		pts = append(pts, pair...)
	}
	return pts, true
}

func numbers(v any) ([]float64, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	out := make([]float64, 0, len(list))
	for _, x := range list {
		f, ok := number(x)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(x), "%")), 64)
		return f, err == nil
	}
	return 0, false
}

// confidence clamps to [0,1]. Only an explicit percent string ("85%") is
// scaled; a bare number above 1 is an over-confident score, not a percentage.
func confidence(v any) (float64, bool) {
	f, ok := number(v)
	if !ok {
		return 0, false
	}
	if math.IsNaN(f) {
		return DefaultConfidence, true
	}
	if s, isStr := v.(string); isStr && strings.HasSuffix(strings.TrimSpace(s), "%") {
		f /= 100
	}
	return math.Max(0, math.Min(1, f)), true
}

func snapRotation(f float64) int {
	r := int(math.Round(f/90)) * 90
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

func idString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func firstList(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if l, ok := m[k].([]any); ok {
			return l
		}
	}
	return nil
}

func processLog(m map[string]any) string {
	for _, k := range []string{"process_log", "summary"} {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case nil:
		default:
			if b, err := jsonutil.MarshalNoEscape(v); err == nil {
				return string(b)
			}
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
