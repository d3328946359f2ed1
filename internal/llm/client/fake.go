package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// FakeClient returns deterministic payloads per stage for offline/testing.
// Handler, when set, overrides the defaults.
type FakeClient struct {
	Handler func(ctx context.Context, req VisionRequest) (string, error)

	mu    sync.Mutex
	calls []VisionRequest
}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeVision" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateVision(ctx context.Context, req VisionRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Handler != nil {
		return f.Handler(ctx, req)
	}
	switch StageFrom(ctx) {
	case StageClassify:
		return "HVAC", nil
	case StageRefine:
		// echo the merged JSON embedded in the prompt
		i, j := strings.Index(req.Prompt, "{"), strings.LastIndex(req.Prompt, "}")
		if i >= 0 && j > i {
			return req.Prompt[i : j+1], nil
		}
		return `{"components":[],"connections":[]}`, nil
	default:
		obj := map[string]any{
			"components": []any{
				map[string]any{"id": "fake-1", "type": "unknown", "label": "FAKE", "bbox": []float64{0.1, 0.1, 0.2, 0.2}, "confidence": 0.5},
			},
			"connections": []any{},
			"summary":     "fake detect output",
		}
		b, _ := json.Marshal(obj)
		return string(b), nil
	}
}

// Calls returns a copy of the requests seen so far.
func (f *FakeClient) Calls() []VisionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]VisionRequest(nil), f.calls...)
}

// ReplayClient serves a recorded analysis for every detect and refine call
// so the pipeline can run without the model (mock mode).
type ReplayClient struct {
	payload string
	kind    string
	delay   time.Duration
}

// NewReplayClient loads the fixture at path. kind answers classification
// calls ("PID" or "HVAC").
func NewReplayClient(path, kind string, delay time.Duration) (*ReplayClient, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mock fixture: %w", err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("mock fixture %s is not valid JSON", path)
	}
	if kind == "" {
		kind = "HVAC"
	}
	return &ReplayClient{payload: string(b), kind: strings.ToUpper(kind), delay: delay}, nil
}

func (r *ReplayClient) Name() string { return "Replay" }
func (r *ReplayClient) Close() error { return nil }

func (r *ReplayClient) GenerateVision(ctx context.Context, req VisionRequest) (string, error) {
	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if StageFrom(ctx) == StageClassify {
		return r.kind, nil
	}
	return r.payload, nil
}
