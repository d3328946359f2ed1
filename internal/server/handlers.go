package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/isa"
	"blueprintvision/internal/jobs"
	"blueprintvision/internal/tiling"
)

type AnalyzeRequest struct {
	// Image is base64, optionally as a data URL.
	Image    string `json:"image" binding:"required"`
	MIMEType string `json:"mime_type"`
}

type AnalyzeAccepted struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

// handleAnalyze handles POST /api/analyze. By default the analysis runs as a
// job (202 + job id); ?sync=true answers with the result directly.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	img := tiling.NewImage(req.Image, req.MIMEType)
	if img.Empty() {
		abort(c, http.StatusBadRequest, "EMPTY_IMAGE", tiling.ErrEmptyImage)
		return
	}

	if c.Query("sync") == "true" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.SyncTimeout)
		defer cancel()
		res, err := s.analyzer.Analyze(ctx, img)
		if err != nil {
			abort(c, statusFor(err), "ANALYSIS_FAILED", err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	j, err := s.jobs.Submit(func(ctx context.Context) (detection.Result, error) {
		return s.analyzer.Analyze(ctx, img)
	})
	if err != nil {
		abort(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err)
		return
	}
	s.log.Info("analysis job submitted", zap.String("job_id", j.ID), zap.Int("image_bytes", img.Size()))
	c.JSON(http.StatusAccepted, AnalyzeAccepted{JobID: j.ID, Status: j.Status})
}

// handleJob handles GET /api/jobs/:id.
func (s *Server) handleJob(c *gin.Context) {
	j, err := s.jobs.Get(c.Param("id"))
	if err != nil {
		abort(c, http.StatusNotFound, "JOB_NOT_FOUND", err)
		return
	}
	c.JSON(http.StatusOK, j)
}

type ParseTagsRequest struct {
	Tags []string `json:"tags" binding:"required,min=1,max=1000"`
}

type ParseTagsResponse struct {
	Tags       []isa.Validation `json:"tags"`
	Duplicates []string         `json:"duplicates"`
}

// handleParseTags handles POST /api/tags/parse.
func (s *Server) handleParseTags(c *gin.Context) {
	var req ParseTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	dups := isa.FindDuplicates(req.Tags)
	if dups == nil {
		dups = []string{}
	}
	c.JSON(http.StatusOK, ParseTagsResponse{Tags: isa.ValidateAll(req.Tags), Duplicates: dups})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tiling.ErrEmptyImage):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
