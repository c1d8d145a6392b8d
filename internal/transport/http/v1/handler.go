// Package v1 provides the synchronous HTTP API.
package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/pipeline"
	"github.com/xiaot623/conclave/internal/repository"
)

// Asker answers a query without streaming.
type Asker interface {
	Answer(ctx context.Context, q domain.Query) (pipeline.Outcome, error)
}

// RunReader reads run traces.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)
	GetEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]*domain.Event, error)
}

// Handler handles HTTP requests.
type Handler struct {
	asker Asker
	runs  RunReader
}

// NewHandler creates a new handler. runs may be nil when tracing is disabled.
func NewHandler(asker Asker, runs RunReader) *Handler {
	return &Handler{
		asker: asker,
		runs:  runs,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/ask", h.Ask)

	e.GET("/v1/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Message string `json:"message"`
}

// AskResponse is the answer to POST /v1/ask.
type AskResponse struct {
	Answer    string                  `json:"answer"`
	UsedRoles []domain.RoleName       `json:"used_roles"`
	Degraded  bool                    `json:"degraded"`
	Routing   *domain.RoutingDecision `json:"routing,omitempty"`
	Mode      domain.Mode             `json:"mode"`
	RunID     string                  `json:"run_id,omitempty"`
}

// Ask answers a single question.
// POST /v1/ask
func (h *Handler) Ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}

	outcome, err := h.asker.Answer(c.Request().Context(), domain.NewQuery(req.Message))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return c.JSON(status, map[string]string{
			"error":  "Error: " + err.Error(),
			"run_id": outcome.RunID,
		})
	}

	usedRoles := outcome.Answer.UsedRoles
	if usedRoles == nil {
		usedRoles = []domain.RoleName{}
	}
	return c.JSON(http.StatusOK, AskResponse{
		Answer:    outcome.Answer.Text,
		UsedRoles: usedRoles,
		Degraded:  outcome.Answer.Degraded,
		Routing:   outcome.Routing,
		Mode:      outcome.Mode,
		RunID:     outcome.RunID,
	})
}

// ListRuns lists the most recent runs.
// GET /v1/runs
func (h *Handler) ListRuns(c echo.Context) error {
	if h.runs == nil {
		return tracingDisabled(c)
	}
	runs, err := h.runs.ListRuns(c.Request().Context(), intParam(c, "limit", 50))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GetRun retrieves a run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	if h.runs == nil {
		return tracingDisabled(c)
	}
	run, err := h.runs.GetRun(c.Request().Context(), c.Param("run_id"))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents retrieves events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	if h.runs == nil {
		return tracingDisabled(c)
	}
	runID := c.Param("run_id")
	ctx := c.Request().Context()

	if _, err := h.runs.GetRun(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}

	events, err := h.runs.GetEvents(ctx, runID, afterTs, intParam(c, "limit", 100))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

func intParam(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func tracingDisabled(c echo.Context) error {
	return c.JSON(http.StatusNotFound, map[string]string{"error": "tracing is disabled"})
}
