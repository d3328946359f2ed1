package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"blueprintvision/internal/cache"
	"blueprintvision/internal/detection"
	llmclient "blueprintvision/internal/llm/client"
	"blueprintvision/internal/prompt"
	"blueprintvision/internal/tiling"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pngImage(t *testing.T, w, h int) tiling.Image {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	return tiling.NewImage(base64.StdEncoding.EncodeToString(buf.Bytes()), "image/png")
}

const valveReply = `{"components":[{"id":"v1","type":"valve","label":"PT-101","bbox":[0.4,0.4,0.6,0.6],"confidence":0.9}],"connections":[],"summary":"one transmitter"}`

func echoRefine(req llmclient.VisionRequest) string {
	i, j := strings.Index(req.Prompt, "{"), strings.LastIndex(req.Prompt, "}")
	return req.Prompt[i : j+1]
}

func scripted(refineErr error) *llmclient.FakeClient {
	f := llmclient.NewFakeClient()
	f.Handler = func(ctx context.Context, req llmclient.VisionRequest) (string, error) {
		switch llmclient.StageFrom(ctx) {
		case llmclient.StageClassify:
			return "This drawing is a P&ID.", nil
		case llmclient.StageRefine:
			if refineErr != nil {
				return "", refineErr
			}
			return echoRefine(req), nil
		}
		if llmclient.TileFrom(ctx) == "r1c1" {
			return "", errors.New("boom")
		}
		return valveReply, nil
	}
	return f
}

func tiledOptions() Options {
	opts := DefaultOptions()
	opts.Planner.Threshold = 1
	return opts
}

func stages(r detection.Result) []string {
	var out []string
	for _, d := range r.Metadata.Degraded {
		out = append(out, d.Stage+"/"+d.Tile)
	}
	return out
}

func TestAnalyze_TiledWithFailingTileAndRefineFallback(t *testing.T) {
	f := scripted(errors.New("quota"))
	a := New(f, tiledOptions(), nil, nil)

	res, err := a.Analyze(context.Background(), pngImage(t, 64, 64))
	require.NoError(t, err)

	md := res.Metadata
	assert.True(t, md.Tiled)
	assert.Equal(t, 4, md.TileCount)
	assert.Equal(t, string(prompt.KindPID), md.BlueprintType)
	assert.False(t, md.Refined)
	require.Len(t, res.Components, 3)
	assert.Equal(t, 3, md.TotalComponents)
	assert.Contains(t, stages(res), "detect/r1c1")
	assert.Contains(t, stages(res), "refine/full")
	assert.Contains(t, md.ProcessLog, "[r0c0] one transmitter")

	ids := map[string]bool{}
	for _, c := range res.Components {
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
		assert.True(t, c.BBox.Valid(), "bbox %v", c.BBox)
	}

	// classify + 4 tiles + refine
	assert.Len(t, f.Calls(), 6)
}

func TestAnalyze_RefineAndEnrich(t *testing.T) {
	a := New(scripted(nil), tiledOptions(), nil, nil)
	res, err := a.Analyze(context.Background(), pngImage(t, 64, 64))
	require.NoError(t, err)

	assert.True(t, res.Metadata.Refined)
	require.Len(t, res.Components, 3)
	require.Len(t, res.Metadata.ControlLoops, 1)
	loop := res.Metadata.ControlLoops[0]
	assert.Equal(t, "P-101", loop.Key)
	assert.Equal(t, "Pressure", loop.Variable)
	assert.Len(t, loop.Components, 3)

	tag, ok := res.Components[0].Meta["isa"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PT-101", tag["tag"])
	assert.Equal(t, "valve", res.Components[0].Type)

	require.NotNil(t, res.Metadata.Quality)
	assert.InDelta(t, 0.9, res.Metadata.Quality.AverageConfidence, 1e-9)
	assert.InDelta(t, 1.0, res.Metadata.Quality.ISACompleteness, 1e-9)
}

func TestAnalyze_CacheShortCircuits(t *testing.T) {
	f := scripted(nil)
	store := cache.NewLRU(8, 0)
	a := New(f, tiledOptions(), store, nil)
	img := pngImage(t, 64, 64)

	first, err := a.Analyze(context.Background(), img)
	require.NoError(t, err)
	assert.False(t, first.Metadata.FromCache)
	calls := len(f.Calls())

	second, err := a.Analyze(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, second.Metadata.FromCache)
	assert.Equal(t, calls, len(f.Calls()))
	assert.Equal(t, first.Components, second.Components)
}

func TestAnalyze_ForcedKindUntiled(t *testing.T) {
	f := llmclient.NewFakeClient()
	opts := DefaultOptions()
	opts.Kind = prompt.KindHVAC
	a := New(f, opts, nil, nil)

	res, err := a.Analyze(context.Background(), pngImage(t, 16, 16))
	require.NoError(t, err)

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, prompt.Detect(prompt.KindHVAC, tiling.FullName), calls[0].Prompt)
	assert.False(t, res.Metadata.Tiled)
	assert.False(t, res.Metadata.Refined)
	assert.Empty(t, res.Metadata.Degraded)
	require.Len(t, res.Components, 1)
	assert.Equal(t, "fake-1", res.Components[0].ID)
}

func TestAnalyze_UndecodableImageFallsBackToSinglePass(t *testing.T) {
	f := llmclient.NewFakeClient()
	a := New(f, tiledOptions(), nil, nil)

	res, err := a.Analyze(context.Background(), tiling.NewImage("bm90IGFuIGltYWdl", "image/png"))
	require.NoError(t, err)
	assert.False(t, res.Metadata.Tiled)
	assert.Equal(t, 1, res.Metadata.TileCount)
	assert.Contains(t, stages(res), "tile/")
	assert.Len(t, res.Components, 1)
}

func TestAnalyze_EmptyImage(t *testing.T) {
	a := New(llmclient.NewFakeClient(), DefaultOptions(), nil, nil)
	res, err := a.Analyze(context.Background(), tiling.Image{})
	require.ErrorIs(t, err, tiling.ErrEmptyImage)
	assert.NotNil(t, res.Components)
	assert.Empty(t, res.Components)
}

func TestAnalyze_CancelledIsNotCached(t *testing.T) {
	store := cache.NewLRU(8, 0)
	a := New(llmclient.NewFakeClient(), DefaultOptions(), store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.Analyze(ctx, pngImage(t, 16, 16))
	require.NoError(t, err)
	assert.Empty(t, res.Components)
	assert.Contains(t, stages(res), "classify/")
	assert.Contains(t, stages(res), "cancel/")
	assert.Equal(t, 0, store.Len())
}

type fanOut struct {
	inFlight, peak, arrived, returned atomic.Int32
	returnedAtRefine                  atomic.Int32
}

func (f *fanOut) enter() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (f *fanOut) client(waitFor int32, hold time.Duration) *llmclient.FakeClient {
	cli := llmclient.NewFakeClient()
	cli.Handler = func(ctx context.Context, req llmclient.VisionRequest) (string, error) {
		switch llmclient.StageFrom(ctx) {
		case llmclient.StageClassify:
			return "PID", nil
		case llmclient.StageRefine:
			f.returnedAtRefine.Store(f.returned.Load())
			return echoRefine(req), nil
		}
		f.enter()
		defer f.inFlight.Add(-1)
		defer f.returned.Add(1)
		f.arrived.Add(1)
		deadline := time.Now().Add(2 * time.Second)
		for f.arrived.Load() < waitFor && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(hold)
		return valveReply, nil
	}
	return cli
}

func TestAnalyze_TilesRunConcurrentlyThenMerge(t *testing.T) {
	var f fanOut
	opts := tiledOptions()
	opts.MaxConcurrency = 4
	a := New(f.client(4, 0), opts, nil, nil)

	res, err := a.Analyze(context.Background(), pngImage(t, 64, 64))
	require.NoError(t, err)

	assert.Equal(t, int32(4), f.peak.Load(), "all tiles in flight together")
	assert.Equal(t, int32(4), f.returnedAtRefine.Load(), "merge and refine wait for every tile")
	assert.True(t, res.Metadata.Refined)
	assert.Len(t, res.Components, 4)
}

func TestAnalyze_ConcurrencyLimit(t *testing.T) {
	var f fanOut
	opts := tiledOptions()
	opts.MaxConcurrency = 2
	a := New(f.client(2, 20*time.Millisecond), opts, nil, nil)

	_, err := a.Analyze(context.Background(), pngImage(t, 64, 64))
	require.NoError(t, err)

	assert.Greater(t, f.peak.Load(), int32(1))
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	assert.Equal(t, int32(4), f.returned.Load())
}
