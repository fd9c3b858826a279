package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/voice-relay/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With("handler", "session"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/metrics", h.GetMetrics)
	g.GET("/metrics/summary", h.GetSummary)
	g.GET("/sessions", h.ListActive)
	g.GET("/sessions/:id", h.GetSession)
}

type metricsResponse struct {
	Hours   int        `json:"hours"`
	Metrics []*Metrics `json:"metrics"`
}

func parseHours(c echo.Context) int {
	hours := 24
	if hr, err := strconv.Atoi(c.QueryParam("hours")); err == nil && hr > 0 && hr <= maxHours {
		hours = hr
	}
	return hours
}

func (h *Handler) GetMetrics(c echo.Context) error {
	hours := parseHours(c)

	metrics, err := h.store.GetMetrics(c.Request().Context(), hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}
	if metrics == nil {
		metrics = []*Metrics{}
	}

	return c.JSON(http.StatusOK, metricsResponse{Hours: hours, Metrics: metrics})
}

func (h *Handler) GetSummary(c echo.Context) error {
	hours := parseHours(c)

	metrics, err := h.store.GetMetrics(c.Request().Context(), hours)
	if err != nil {
		h.logger.Error("failed to get metrics summary", "error", err)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}

	return c.JSON(http.StatusOK, Summarize(hours, metrics))
}

func (h *Handler) GetSession(c echo.Context) error {
	id := c.Param("id")

	sess, err := h.store.GetSession(c.Request().Context(), id)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		h.logger.Error("failed to get session", "error", err, "id", id)
		return shared.InternalError("get_session_failed", "failed to get session")
	}

	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListActive(c echo.Context) error {
	sessions, err := h.store.ListActive(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		return shared.InternalError("list_sessions_failed", "failed to list sessions")
	}
	if sessions == nil {
		sessions = []*Session{}
	}

	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}
