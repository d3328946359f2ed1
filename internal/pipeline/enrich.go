package pipeline

import (
	"sort"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/isa"
	"blueprintvision/internal/metrics"
)

const minTagConfidence = 0.5

// enrichTags decodes component labels that read as instrument tags and
// groups tagged components into control loops (first letter + loop number).
func enrichTags(r *detection.Result) {
	loops := make(map[string]*detection.ControlLoop)
	for i := range r.Components {
		c := &r.Components[i]
		candidate := c.Label
		if t, ok := c.Meta["tag"].(string); ok && t != "" {
			candidate = t
		}
		if !isa.LooksLikeTag(candidate) {
			continue
		}
		p := isa.Parse(candidate)
		if p.LoopNumber == "" || p.Confidence < minTagConfidence || p.VariableName == "" {
			metrics.TagParses.WithLabelValues("skipped").Inc()
			continue
		}
		metrics.TagParses.WithLabelValues("enriched").Inc()
		c.Meta = detection.CloneMeta(c.Meta)
		c.SetMeta("isa", map[string]any{
			"tag":         p.Cleaned,
			"description": p.Description,
			"variable":    p.VariableName,
			"modifier":    p.ModifierName,
			"functions":   p.FunctionNames(),
			"loop":        p.LoopNumber,
			"suffix":      p.Suffix,
			"confidence":  p.Confidence,
		})
		if c.Type == "" || c.Type == "unknown" {
			c.Type = "instrument"
		}
		key := p.MeasuredVariable + "-" + p.LoopNumber
		l, ok := loops[key]
		if !ok {
			l = &detection.ControlLoop{Key: key, Variable: p.VariableName, LoopNumber: p.LoopNumber}
			loops[key] = l
		}
		l.Components = append(l.Components, c.ID)
	}

	r.Metadata.ControlLoops = nil
	for _, l := range loops {
		r.Metadata.ControlLoops = append(r.Metadata.ControlLoops, *l)
	}
	sort.Slice(r.Metadata.ControlLoops, func(i, j int) bool {
		return r.Metadata.ControlLoops[i].Key < r.Metadata.ControlLoops[j].Key
	})
}

// qualityBucket labels a confidence the way reviewers grade detections.
func qualityBucket(conf float64) string {
	switch {
	case conf >= 0.9:
		return "excellent"
	case conf >= 0.7:
		return "good"
	case conf >= 0.5:
		return "fair"
	default:
		return "poor"
	}
}

func assessQuality(r *detection.Result) {
	n := len(r.Components)
	q := &detection.Quality{}
	if n > 0 {
		var sum float64
		var tagged, excellent int
		for i := range r.Components {
			c := &r.Components[i]
			sum += c.Confidence
			if _, ok := c.Meta["isa"]; ok {
				tagged++
			}
			b := qualityBucket(c.Confidence)
			if b == "excellent" {
				excellent++
			}
			c.Meta = detection.CloneMeta(c.Meta)
			c.SetMeta("detection_quality", b)
		}
		q.AverageConfidence = sum / float64(n)
		q.ISACompleteness = float64(tagged) / float64(n)
		q.ConnectionCoverage = min(float64(len(r.Connections))/float64(n), 1)
		q.DetectionQuality = float64(excellent) / float64(n)
	}
	q.Score = q.AverageConfidence*0.3 + q.ISACompleteness*0.25 + q.ConnectionCoverage*0.2 + q.DetectionQuality*0.25
	r.Metadata.Quality = q
}
