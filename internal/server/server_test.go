package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/geometry"
	"blueprintvision/internal/jobs"
	"blueprintvision/internal/tiling"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAnalyzer struct {
	calls atomic.Int32
	last  atomic.Value
}

func (s *stubAnalyzer) Analyze(ctx context.Context, img tiling.Image) (detection.Result, error) {
	s.calls.Add(1)
	s.last.Store(img)
	r := detection.Empty()
	r.Components = append(r.Components, detection.Component{ID: "p1", Type: "pump", BBox: geometry.Box{0.1, 0.1, 0.2, 0.2}, Confidence: 0.9})
	r.Recount()
	return r, nil
}

func newTestServer(t *testing.T) (*stubAnalyzer, *gin.Engine) {
	t.Helper()
	a := &stubAnalyzer{}
	jm := jobs.NewManager(nil)
	t.Cleanup(jm.Close)
	return a, New(a, jm, nil).Router()
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	_, r := newTestServer(t)
	w := do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAnalyze_Sync(t *testing.T) {
	a, r := newTestServer(t)
	w := do(r, http.MethodPost, "/api/analyze?sync=true", AnalyzeRequest{Image: "data:image/jpeg;base64,QUJD"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res detection.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Metadata.TotalComponents)

	img := a.last.Load().(tiling.Image)
	assert.Equal(t, "QUJD", img.Data)
	assert.Equal(t, "image/jpeg", img.MIMEType)
}

func TestAnalyze_AsyncJob(t *testing.T) {
	_, r := newTestServer(t)
	w := do(r, http.MethodPost, "/api/analyze", AnalyzeRequest{Image: "QUJD"})
	require.Equal(t, http.StatusAccepted, w.Code)

	var acc AnalyzeAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acc))
	require.NotEmpty(t, acc.JobID)

	require.Eventually(t, func() bool {
		w := do(r, http.MethodGet, "/api/jobs/"+acc.JobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var j jobs.Job
		if err := json.Unmarshal(w.Body.Bytes(), &j); err != nil {
			return false
		}
		return j.Status == jobs.StatusDone && j.Result != nil && len(j.Result.Components) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnalyze_BadRequests(t *testing.T) {
	a, r := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/analyze", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/analyze", AnalyzeRequest{Image: "data:image/png;base64,"}).Code)
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestJob_NotFound(t *testing.T) {
	_, r := newTestServer(t)
	w := do(r, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParseTags(t *testing.T) {
	_, r := newTestServer(t)
	w := do(r, http.MethodPost, "/api/tags/parse", ParseTagsRequest{Tags: []string{"PDIT-101", "pdit 101", "??"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ParseTagsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Tags, 3)
	assert.True(t, resp.Tags[0].Valid)
	assert.Equal(t, "Pressure Differential Indicator Transmitter", resp.Tags[0].Parsed.Description)
	assert.False(t, resp.Tags[2].Valid)
	assert.Equal(t, []string{"PDIT-101"}, resp.Duplicates)
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestServer(t)
	w := do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
