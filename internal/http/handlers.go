package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReconcileRequest is the POST /api/v1/reconcile input. Table cells
// arrive as JSON strings, numbers, or nulls; all parsing happens inside
// the pipeline.
type ReconcileRequest struct {
	Installations *dataset.Table `json:"installations"`
	Incidents     *dataset.Table `json:"incidents"`
	Returns       *dataset.Table `json:"returns"`
}

// ScrubRequest is the POST /api/v1/scrub input.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the POST /api/v1/scrub output.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReconcile runs the pipeline over the posted tables and returns
// the full run result.
func (s *Server) handleReconcile(c echo.Context) error {
	var req ReconcileRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid reconcile request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Installations == nil || req.Incidents == nil || req.Returns == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "installations, incidents, and returns tables are required")
	}

	ctx := c.Request().Context()
	result, err := s.pipeline.Run(ctx, &pipeline.RunRequest{
		Installations: req.Installations,
		Incidents:     req.Incidents,
		Returns:       req.Returns,
		Trigger:       "http",
	})
	if err != nil {
		s.recorder.RecordFailure()
		var missing *dataset.MissingFieldsError
		if errors.As(err, &missing) {
			return echo.NewHTTPError(http.StatusBadRequest, missing.Error())
		}
		s.logger.Error(ctx, "reconciliation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "reconciliation failed")
	}

	s.recorder.RecordRun(result)
	return c.JSON(http.StatusOK, result)
}

// handleScrub redacts credential material from the provided content.
func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content must not be empty")
	}

	result := s.scrubber.Scrub(req.Content)

	s.logger.Debug(c.Request().Context(), "scrubbed content",
		zap.Int("findings", result.Audit.Summary.TotalSecrets),
	)

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Content,
		FindingsCount: result.Audit.Summary.TotalSecrets,
	})
}

// handleStats returns run statistics for dashboards.
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.recorder.Snapshot())
}
