// Package pipeline runs a diagram through classification, tiling, per-tile
// detection, merge, refinement and tag enrichment.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"blueprintvision/internal/cache"
	"blueprintvision/internal/detection"
	llmclient "blueprintvision/internal/llm/client"
	"blueprintvision/internal/merge"
	"blueprintvision/internal/metrics"
	"blueprintvision/internal/prompt"
	"blueprintvision/internal/refine"
	"blueprintvision/internal/remap"
	"blueprintvision/internal/sanitize"
	"blueprintvision/internal/tiling"
)

const (
	DefaultMaxConcurrency = 4
	classifyTemperature   = 0.1
	defaultDetectTemp     = 0.2

	stageTile   = "tile"
	stageRemap  = "remap"
	stageCancel = "cancel"
)

type Options struct {
	Planner        tiling.Planner
	Merge          merge.Options
	MaxConcurrency int
	// Refine runs the full-image audit after merging a tiled analysis.
	Refine bool
	// RefineUntiled also audits images that were analyzed in one pass.
	RefineUntiled    bool
	PreserveGeometry bool
	// Temperature overrides the detection and refinement sampling temperature.
	Temperature float32
	// Kind skips classification when set.
	Kind prompt.Kind
}

func DefaultOptions() Options {
	return Options{
		Planner:        tiling.DefaultPlanner(),
		Merge:          merge.Options{IoUThreshold: merge.DefaultIoUThreshold},
		MaxConcurrency: DefaultMaxConcurrency,
		Refine:         true,
	}
}

type Analyzer struct {
	client  llmclient.VisionClient
	cache   cache.Store
	log     *zap.Logger
	opts    Options
	auditor *refine.Auditor
}

// New builds an Analyzer. A nil store disables caching; a nil logger is a no-op.
func New(cli llmclient.VisionClient, opts Options, store cache.Store, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cache.Nop{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	aud := refine.NewAuditor(cli, logger.Named("refine"))
	aud.PreserveGeometry = opts.PreserveGeometry
	if opts.Temperature > 0 {
		aud.Temperature = opts.Temperature
	}
	return &Analyzer{client: cli, cache: store, log: logger, opts: opts, auditor: aud}
}

// Analyze returns a best-effort result. The error is reserved for unusable
// input; model and parse failures show up as Metadata.Degraded entries.
func (a *Analyzer) Analyze(ctx context.Context, img tiling.Image) (detection.Result, error) {
	if img.Empty() {
		return detection.Empty(), tiling.ErrEmptyImage
	}
	start := time.Now()
	key := cache.Key(img.Data, a.variant())
	if hit, ok := a.cache.Get(key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		metrics.Analyses.WithLabelValues("cached").Inc()
		hit.Metadata.FromCache = true
		a.log.Info("analysis served from cache", zap.String("key", key))
		return hit, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	var degraded []detection.Degradation
	kind := a.opts.Kind
	if kind == "" {
		var err error
		kind, err = a.classify(ctx, img)
		if err != nil {
			degraded = append(degraded, detection.Degradation{Stage: llmclient.StageClassify, Reason: err.Error() + ", assuming HVAC"})
		}
	}

	plan, err := a.opts.Planner.Plan(img)
	if err != nil {
		a.log.Warn("tiling failed, analyzing in one pass", zap.Error(err))
		degraded = append(degraded, detection.Degradation{Stage: stageTile, Reason: err.Error()})
	}

	outcomes := a.detectTiles(ctx, plan, kind)
	tiles := make([]merge.Tile, 0, len(outcomes))
	var logs []string
	droppedComps := 0
	for _, o := range outcomes {
		tiles = append(tiles, o.tile)
		degraded = append(degraded, o.degraded...)
		droppedComps += o.dropped
		if o.log != "" {
			logs = append(logs, o.log)
		}
	}

	out := merge.Tiles(tiles, a.opts.Merge)
	res := detection.Result{
		Components:  out.Components,
		Connections: out.Connections,
		Metadata: detection.Metadata{
			BlueprintType:      string(kind),
			Tiled:              plan.Tiled,
			TileCount:          len(plan.Tiles),
			Suppressed:         out.Suppressed,
			DroppedComponents:  droppedComps,
			DroppedConnections: out.DroppedConnections,
			ProcessLog:         strings.Join(logs, "\n"),
			Degraded:           degraded,
		},
	}
	if res.Components == nil {
		res.Components = []detection.Component{}
	}
	res.Recount()
	metrics.Suppressed.Add(float64(out.Suppressed))
	a.log.Info("tiles merged",
		zap.Int("tiles", len(tiles)),
		zap.Int("components", len(res.Components)),
		zap.Int("suppressed", out.Suppressed),
		zap.Int("dropped_connections", out.DroppedConnections))

	if a.opts.Refine && (plan.Tiled || a.opts.RefineUntiled) {
		full := plan.Full.Image
		if full.Empty() {
			full = img
		}
		// the auditor records its own degradation on fallback
		res, _ = a.auditor.Refine(ctx, res, full, kind)
	}

	enrichTags(&res)
	assessQuality(&res)
	res.Recount()

	metrics.DroppedConnections.Add(float64(res.Metadata.DroppedConnections))
	for _, d := range res.Metadata.Degraded {
		metrics.Degradations.WithLabelValues(d.Stage).Inc()
	}
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if len(res.Metadata.Degraded) > 0 {
		metrics.Analyses.WithLabelValues("degraded").Inc()
	} else {
		metrics.Analyses.WithLabelValues("ok").Inc()
	}

	// a cancelled run is incomplete; do not memoize it
	if ctx.Err() == nil {
		a.cache.Put(key, res)
	} else {
		res.Degrade(stageCancel, "", ctx.Err().Error())
	}
	a.log.Info("analysis complete",
		zap.String("blueprint_type", string(kind)),
		zap.Bool("tiled", plan.Tiled),
		zap.Bool("refined", res.Metadata.Refined),
		zap.Int("components", res.Metadata.TotalComponents),
		zap.Int("connections", res.Metadata.TotalConnections),
		zap.Int("degraded", len(res.Metadata.Degraded)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (a *Analyzer) variant() string {
	o := a.opts
	p := o.Planner
	return fmt.Sprintf("%s|%d|%dx%d|%g|%g|%t|%t|%t|%t|%g",
		o.Kind, p.Threshold, p.Rows, p.Cols, p.Overlap, o.Merge.IoUThreshold,
		o.Merge.ClassAware, o.Refine, o.RefineUntiled, o.PreserveGeometry, o.Temperature)
}

func (a *Analyzer) detectTemperature() float32 {
	if a.opts.Temperature > 0 {
		return a.opts.Temperature
	}
	return defaultDetectTemp
}

func (a *Analyzer) classify(ctx context.Context, img tiling.Image) (prompt.Kind, error) {
	ctx = llmclient.WithStage(ctx, llmclient.StageClassify)
	reply, err := a.client.GenerateVision(ctx, llmclient.VisionRequest{
		ImageData:         img.Data,
		MIMEType:          img.MIMEType,
		Prompt:            prompt.Classify,
		SystemInstruction: prompt.ClassifySystem,
		Temperature:       genai.Ptr[float32](classifyTemperature),
	})
	if err != nil {
		a.log.Warn("blueprint classification failed", zap.Error(err))
		return prompt.KindHVAC, fmt.Errorf("classify: %w", err)
	}
	return prompt.ParseKind(reply), nil
}

type tileOutcome struct {
	tile     merge.Tile
	degraded []detection.Degradation
	dropped  int
	log      string
}

// detectTiles fans out one detection call per tile. Every tile settles before
// it returns; a failing tile contributes no detections. Results keep plan order.
func (a *Analyzer) detectTiles(ctx context.Context, plan tiling.Plan, kind prompt.Kind) []tileOutcome {
	results := make([]tileOutcome, len(plan.Tiles))
	var g errgroup.Group
	g.SetLimit(a.opts.MaxConcurrency)
	for i, t := range plan.Tiles {
		g.Go(func() error {
			results[i] = a.detectTile(ctx, t, kind, plan.Tiled)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *Analyzer) detectTile(ctx context.Context, t tiling.Tile, kind prompt.Kind, tiled bool) tileOutcome {
	out := tileOutcome{tile: merge.Tile{Name: t.Name}}
	ctx = llmclient.WithTile(llmclient.WithStage(ctx, llmclient.StageDetect), t.Name)
	reply, err := a.client.GenerateVision(ctx, llmclient.VisionRequest{
		ImageData:         t.Image.Data,
		MIMEType:          t.Image.MIMEType,
		Prompt:            prompt.Detect(kind, t.Name),
		SystemInstruction: prompt.DetectSystem(kind),
		ResponseSchema:    prompt.Schema(kind),
		Temperature:       genai.Ptr(a.detectTemperature()),
	})
	if err != nil {
		metrics.Tiles.WithLabelValues("error").Inc()
		a.log.Warn("tile detection failed", zap.String("tile", t.Name), zap.Error(err))
		out.degraded = append(out.degraded, detection.Degradation{Stage: llmclient.StageDetect, Tile: t.Name, Reason: err.Error()})
		return out
	}

	ns := ""
	if tiled {
		ns = t.Name + "-"
	}
	parsed, err := sanitize.Parse(reply, sanitize.Options{Namespace: ns})
	if err != nil {
		metrics.Tiles.WithLabelValues("unparsable").Inc()
		a.log.Warn("tile reply unparsable", zap.String("tile", t.Name), zap.Error(err))
		out.degraded = append(out.degraded, detection.Degradation{Stage: llmclient.StageDetect, Tile: t.Name, Reason: err.Error()})
		return out
	}
	metrics.Tiles.WithLabelValues("ok").Inc()

	comps, st := remap.Components(parsed.Components, t.BBox, t.Name)
	if len(st.Dropped) > 0 {
		out.degraded = append(out.degraded, detection.Degradation{
			Stage:  stageRemap,
			Tile:   t.Name,
			Reason: "dropped degenerate boxes: " + strings.Join(st.Dropped, ", "),
		})
	}
	a.log.Debug("tile detected",
		zap.String("tile", t.Name),
		zap.Int("components", len(comps)),
		zap.Int("connections", len(parsed.Connections)),
		zap.Int("swapped", st.Swapped),
		zap.Int("clamped", st.Clamped))

	out.tile.Components = comps
	out.tile.Connections = parsed.Connections
	out.dropped = parsed.Metadata.DroppedComponents + len(st.Dropped)
	if parsed.Metadata.ProcessLog != "" {
		out.log = "[" + t.Name + "] " + parsed.Metadata.ProcessLog
	}
	return out
}
