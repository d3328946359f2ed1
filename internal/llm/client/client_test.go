package llmclient

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestClassify_PermanentOnClientErrors(t *testing.T) {
	var pErr *PermanentError
	err := classify(genai.APIError{Code: http.StatusBadRequest, Message: "bad"})
	assert.True(t, errors.As(err, &pErr))

	err = classify(genai.APIError{Code: http.StatusTooManyRequests})
	assert.False(t, errors.As(err, &pErr))

	err = classify(genai.APIError{Code: http.StatusServiceUnavailable})
	assert.False(t, errors.As(err, &pErr))

	err = classify(errors.New("boom"))
	assert.False(t, errors.As(err, &pErr))
}

func TestStageContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", StageFrom(ctx))
	ctx = WithTile(WithStage(ctx, StageDetect), "r0c1")
	assert.Equal(t, StageDetect, StageFrom(ctx))
	assert.Equal(t, "r0c1", TileFrom(ctx))
}

func TestFakeClient_PerStage(t *testing.T) {
	f := NewFakeClient()
	ctx := context.Background()

	out, err := f.GenerateVision(WithStage(ctx, StageClassify), VisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "HVAC", out)

	out, err = f.GenerateVision(WithStage(ctx, StageRefine), VisionRequest{Prompt: "audit this: {\"components\":[]} and return it"})
	require.NoError(t, err)
	assert.Equal(t, `{"components":[]}`, out)

	out, err = f.GenerateVision(WithStage(ctx, StageDetect), VisionRequest{})
	require.NoError(t, err)
	assert.Contains(t, out, "fake-1")
	assert.Len(t, f.Calls(), 3)
}

func TestReplayClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"components":[]}`), 0o644))

	r, err := NewReplayClient(path, "pid", 0)
	require.NoError(t, err)
	out, err := r.GenerateVision(WithStage(context.Background(), StageClassify), VisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "PID", out)
	out, err = r.GenerateVision(WithStage(context.Background(), StageDetect), VisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, `{"components":[]}`, out)

	slow, err := NewReplayClient(path, "", time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.GenerateVision(ctx, VisionRequest{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewReplayClient(filepath.Join(t.TempDir(), "missing.json"), "", 0)
	assert.Error(t, err)
}
