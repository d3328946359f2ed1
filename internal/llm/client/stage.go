package llmclient

import "context"

// Stage names used in contexts, logs and metrics.
const (
	StageClassify = "classify"
	StageDetect   = "detect"
	StageRefine   = "refine"
)

type ctxKeyStage struct{}
type ctxKeyTile struct{}

// WithStage attaches a pipeline stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxKeyStage{}, stage)
}

// StageFrom returns the stage stored in the context.
func StageFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyStage{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}

func WithTile(ctx context.Context, tile string) context.Context {
	return context.WithValue(ctx, ctxKeyTile{}, tile)
}

func TileFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyTile{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
