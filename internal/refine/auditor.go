// Package refine runs the full-image audit pass over merged detections.
package refine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/geometry"
	llmclient "blueprintvision/internal/llm/client"
	"blueprintvision/internal/merge"
	"blueprintvision/internal/prompt"
	"blueprintvision/internal/remap"
	"blueprintvision/internal/sanitize"
	"blueprintvision/internal/tiling"
	"blueprintvision/internal/util/jsonutil"
)

const (
	DefaultTemperature = 0.1
	matchIoU           = 0.5
)

// Auditor asks the model to correct the merged set against the full image.
// Its reply replaces the merged set; on any failure the merged set stands.
type Auditor struct {
	Client llmclient.VisionClient
	Logger *zap.Logger
	// PreserveGeometry keeps the tiled box of refined components that can be
	// matched back to a merged one, and keeps merged connections when the
	// audit returns none.
	PreserveGeometry bool
	Temperature      float32
}

func NewAuditor(cli llmclient.VisionClient, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{Client: cli, Logger: logger, Temperature: DefaultTemperature}
}

type auditPayload struct {
	Components  []auditComponent        `json:"components"`
	Connections []detection.Connection `json:"connections"`
}

type auditComponent struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Label      string       `json:"label"`
	BBox       geometry.Box `json:"bbox"`
	Confidence float64      `json:"confidence"`
	Rotation   int          `json:"rotation"`
}

// Refine returns the audited result, or merged with a recorded degradation
// and the cause when the audit could not be used.
func (a *Auditor) Refine(ctx context.Context, merged detection.Result, full tiling.Image, kind prompt.Kind) (detection.Result, error) {
	payload := auditPayload{Connections: merged.Connections}
	for _, c := range merged.Components {
		payload.Components = append(payload.Components, auditComponent{
			ID: c.ID, Type: c.Type, Label: c.Label, BBox: c.BBox, Confidence: c.Confidence, Rotation: c.Rotation,
		})
	}
	body, err := jsonutil.MarshalNoEscapeIndent(payload, "", "  ")
	if err != nil {
		return a.fallback(merged, fmt.Errorf("encode merged detections: %w", err))
	}

	ctx = llmclient.WithTile(llmclient.WithStage(ctx, llmclient.StageRefine), tiling.FullName)
	reply, err := a.Client.GenerateVision(ctx, llmclient.VisionRequest{
		ImageData:         full.Data,
		MIMEType:          full.MIMEType,
		Prompt:            prompt.Refine(kind, string(body)),
		SystemInstruction: prompt.RefineSystem,
		ResponseSchema:    prompt.Schema(kind),
		Temperature:       genai.Ptr(a.temperature()),
	})
	if err != nil {
		return a.fallback(merged, fmt.Errorf("refine call: %w", err))
	}
	refined, err := sanitize.Parse(reply, sanitize.Options{Namespace: "refined-"})
	if err != nil {
		return a.fallback(merged, err)
	}

	comps, st := remap.Components(refined.Components, geometry.Full, tiling.FullName)
	if a.PreserveGeometry {
		comps = preserveGeometry(comps, merged.Components)
	}
	conns := refined.Connections
	if a.PreserveGeometry && len(conns) == 0 {
		conns = merged.Connections
	}
	conns, dropped := merge.Reconcile(conns, comps, nil)

	out := detection.Result{Components: comps, Connections: conns, Metadata: merged.Metadata}
	out.Metadata.Degraded = append([]detection.Degradation(nil), merged.Metadata.Degraded...)
	out.Metadata.Refined = true
	out.Metadata.DroppedComponents += refined.Metadata.DroppedComponents + len(st.Dropped)
	out.Metadata.DroppedConnections += refined.Metadata.DroppedConnections + dropped
	if refined.Metadata.ProcessLog != "" {
		out.Metadata.ProcessLog = refined.Metadata.ProcessLog
	}
	out.Recount()
	a.Logger.Info("refinement applied",
		zap.Int("merged_components", len(merged.Components)),
		zap.Int("refined_components", len(out.Components)),
		zap.Int("dropped_connections", dropped))
	return out, nil
}

func (a *Auditor) temperature() float32 {
	if a.Temperature <= 0 {
		return DefaultTemperature
	}
	return a.Temperature
}

func (a *Auditor) fallback(merged detection.Result, err error) (detection.Result, error) {
	a.Logger.Warn("refinement skipped, keeping merged result", zap.Error(err))
	out := merged.Clone()
	out.Degrade(llmclient.StageRefine, tiling.FullName, err.Error())
	return out, err
}

// preserveGeometry maps each refined component onto a merged one by id,
// then label, then best IoU above 0.5, and keeps the merged box and the
// higher confidence. Unmatched refined components pass through.
func preserveGeometry(refined, merged []detection.Component) []detection.Component {
	byID := make(map[string]detection.Component, len(merged))
	byLabel := make(map[string]detection.Component, len(merged))
	for _, m := range merged {
		byID[m.ID] = m
		if m.Label != "" && m.Label != "unknown" {
			if _, ok := byLabel[m.Label]; !ok {
				byLabel[m.Label] = m
			}
		}
	}
	out := make([]detection.Component, len(refined))
	for i, r := range refined {
		match, ok := byID[r.ID]
		if !ok {
			match, ok = byLabel[r.Label]
		}
		if !ok {
			best := 0.0
			for _, m := range merged {
				if iou := geometry.IoU(m.BBox, r.BBox); iou > best {
					best, match = iou, m
				}
			}
			ok = best > matchIoU
		}
		if ok {
			r.BBox = match.BBox
			if match.Confidence > r.Confidence {
				r.Confidence = match.Confidence
			}
			r.SetMeta("matched_id", match.ID)
		}
		out[i] = r
	}
	return out
}
