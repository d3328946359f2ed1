// Package prompt holds the instructions and response schemas sent to the
// vision model for each pipeline stage.
package prompt

import (
	"fmt"
	"strings"
	"unicode"

	"google.golang.org/genai"
)

// Kind is the diagram family; it selects prompts and schema.
type Kind string

const (
	KindPID  Kind = "PID"
	KindHVAC Kind = "HVAC"
)

// ParseKind reads a classifier reply. The first PID or HVAC word decides, so
// "HVAC, not a P&ID" is HVAC. Anything unrecognized is HVAC.
func ParseKind(reply string) Kind {
	words := strings.FieldsFunc(strings.ToUpper(reply), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
	for _, w := range words {
		switch w {
		case "PID", "P&ID", "P&IDS", "PIDS":
			return KindPID
		case "HVAC":
			return KindHVAC
		}
	}
	return KindHVAC
}

const ClassifySystem = `You are an engineering classifier. Respond with ONLY "PID" or "HVAC".`

const Classify = `Analyze this engineering diagram.
Return ONLY "PID" if it contains instrumentation bubbles (circles with text like PI, TT, FIC) and valve symbols.
Return ONLY "HVAC" if it contains ductwork, VAV boxes, and diffusers.`

// DetectSystem is the system instruction for a tile detection call.
func DetectSystem(k Kind) string {
	if k == KindPID {
		return `You are an expert P&ID reader. Detect every instrument, valve, pump, vessel and line.
Read instrument tags exactly as printed (ISA-5.1, e.g. "FIC-101").`
	}
	return `You are an expert HVAC drawing reader. Detect every air handler, VAV box, damper, diffuser,
duct run, sensor and controller. Read equipment tags exactly as printed.`
}

// Detect is the per-tile prompt. tile names the region for the model's log.
func Detect(k Kind, tile string) string {
	return fmt.Sprintf(`Detect all components and the connections between them in this %s image region (%s).

Rules:
- bbox is [x1, y1, x2, y2] normalized to 0-1 relative to THIS image.
- label is the exact visible text; use the tag if one is printed.
- confidence is 0-1.
- rotation is 0, 90, 180 or 270.
- connections reference component ids.
Return JSON only.`, kindLabel(k), tile)
}

const RefineSystem = `You are a Lead Engineering Auditor for QA and correction.

AUDIT PRIORITIES:
1. Missing text labels (components with visible tags marked "unknown")
2. Incorrect OCR (rotation 0, 90, 180, 270)
3. False positives (text or annotations detected as equipment)
4. Missing components
5. Incorrect types
6. Broken connections
7. Duplicates

Return corrected JSON in the same format.`

// Refine embeds the merged detections for the full-image audit.
func Refine(k Kind, mergedJSON string) string {
	return fmt.Sprintf(`Review and correct these %s detections against the full image:

%s

TASKS:
1. Remove false positives
2. Add missing components
3. Fix types and labels
4. Repair connections so they reference existing ids

Keep bbox as [x1, y1, x2, y2] normalized to 0-1 over the full image.
Return corrected JSON.`, kindLabel(k), mergedJSON)
}

func kindLabel(k Kind) string {
	if k == KindPID {
		return "P&ID"
	}
	return "HVAC"
}

// Schema is the JSON response schema for detection and refinement replies.
func Schema(k Kind) *genai.Schema {
	typeDesc := "Classification (e.g. 'vav_box', 'damper', 'duct', 'sensor')."
	if k == KindPID {
		typeDesc = "Classification (e.g. 'valve', 'instrument', 'pump', 'vessel')."
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"components": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":    {Type: genai.TypeString, Description: "Unique id; use the printed tag when visible."},
						"type":  {Type: genai.TypeString, Description: typeDesc},
						"label": {Type: genai.TypeString, Description: "Exact visible text."},
						"bbox": {
							Type:        genai.TypeArray,
							Description: "Normalized [x1, y1, x2, y2].",
							Items:       &genai.Schema{Type: genai.TypeNumber},
						},
						"confidence":  {Type: genai.TypeNumber},
						"rotation":    {Type: genai.TypeInteger, Description: "0, 90, 180 or 270."},
						"description": {Type: genai.TypeString},
						"reasoning":   {Type: genai.TypeString},
					},
					Required: []string{"id", "type", "label", "bbox", "confidence"},
				},
			},
			"connections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":         {Type: genai.TypeString},
						"from_id":    {Type: genai.TypeString},
						"to_id":      {Type: genai.TypeString},
						"type":       {Type: genai.TypeString},
						"confidence": {Type: genai.TypeNumber},
					},
					Required: []string{"from_id", "to_id"},
				},
			},
			"summary": {Type: genai.TypeString},
		},
		Required: []string{"components", "connections"},
	}
}
