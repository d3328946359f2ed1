package main

import (
	"context"
	"fmt"

	"blueprintvision/internal/cache"
	"blueprintvision/internal/config"
	llmclient "blueprintvision/internal/llm/client"
	"blueprintvision/internal/llm/middleware"
	"blueprintvision/internal/merge"
	"blueprintvision/internal/pipeline"
	"blueprintvision/internal/tiling"

	"go.uber.org/zap"
)

func newClient(ctx context.Context, c *config.Config, log *zap.Logger) (llmclient.VisionClient, error) {
	var base llmclient.VisionClient
	if c.Mock.Enabled {
		rc, err := llmclient.NewReplayClient(c.Mock.DataPath, c.Mock.Kind, 0)
		if err != nil {
			return nil, err
		}
		log.Info("mock mode: replaying fixture", zap.String("path", c.Mock.DataPath))
		base = rc
	} else {
		gc, err := llmclient.NewGeminiClient(ctx, c.Gemini.APIKey, c.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		base = gc
	}
	// logging and metrics see the final outcome; rate limit and timeout apply per attempt
	return middleware.Wrap(base,
		middleware.WithLogging(log.Named("oracle")),
		middleware.WithMetrics(),
		middleware.WithHooks(),
		middleware.Retry(c.Gemini.Retries, 0),
		middleware.RateLimit(c.Gemini.RPS, c.Gemini.Burst),
		middleware.WithTimeout(c.Gemini.Timeout),
	), nil
}

func pipelineOptions(c *config.Config) pipeline.Options {
	p := c.Pipeline
	return pipeline.Options{
		Planner: tiling.Planner{
			Threshold: p.TileThreshold,
			Rows:      p.TileRows,
			Cols:      p.TileCols,
			Overlap:   p.TileOverlap,
		},
		Merge:            merge.Options{IoUThreshold: p.IoUThreshold, ClassAware: p.ClassAwareNMS},
		MaxConcurrency:   p.MaxConcurrency,
		Refine:           p.Refine,
		PreserveGeometry: p.PreserveGeometry,
		Temperature:      float32(p.Temperature),
	}
}

func newStore(c *config.Config) cache.Store {
	if c.Cache.Size == 0 {
		return cache.Nop{}
	}
	return cache.NewLRU(c.Cache.Size, c.Cache.TTL)
}

// traceHook logs redacted prompts and replies at debug level.
type traceHook struct{ log *zap.Logger }

func (h traceHook) Before(_ context.Context, stage string, req llmclient.VisionRequest) {
	h.log.Debug("prompt", zap.String("stage", stage), zap.String("image", req.ImageData), zap.String("prompt", req.Prompt))
}

func (h traceHook) After(_ context.Context, stage string, reply string, err error) {
	h.log.Debug("reply", zap.String("stage", stage), zap.String("reply", reply), zap.Error(err))
}

func withTrace(ctx context.Context) context.Context {
	if !verbose {
		return ctx
	}
	return middleware.WithPromptHook(ctx, traceHook{log: logger.Named("trace")})
}
