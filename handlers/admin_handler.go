// handlers/admin_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gewnthar/parkalerts/models"
	"github.com/gewnthar/parkalerts/services"
)

const (
	cacheKeySummary = "sync:summary"
	maxHistoryLimit = 200
)

// Health handles GET /api/health.
func (h *Handler) Health(c echo.Context) error {
	if err := h.store.Ping(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		return respondWithJSON(c, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "database connection error",
		})
	}

	resp := map[string]any{"status": "ok"}
	if h.sync != nil {
		resp["sync_running"] = h.sync.Running()
		if next := h.sync.NextRun(); !next.IsZero() {
			resp["next_sync"] = next.UTC().Format(time.RFC3339)
		}
	}
	return respondWithJSON(c, http.StatusOK, resp)
}

// TriggerSync handles POST /api/admin/sync. The run happens in the
// background; a run already in flight yields 409.
func (h *Handler) TriggerSync(c echo.Context) error {
	if h.sync == nil {
		return respondWithError(c, http.StatusServiceUnavailable, "sync scheduler not available")
	}

	err := h.sync.Trigger(models.RunTypeManual)
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		return respondWithError(c, http.StatusConflict, "a sync run is already in progress")
	case errors.Is(err, services.ErrSchedulerStopped):
		return respondWithError(c, http.StatusServiceUnavailable, "scheduler is shutting down")
	case err != nil:
		return h.internalError(c, "trigger_sync", err)
	}

	return respondWithJSON(c, http.StatusAccepted, map[string]string{"message": "sync started"})
}

// SyncHistory handles GET /api/sync/history[?limit=N].
func (h *Handler) SyncHistory(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return respondWithError(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := h.store.RecentSyncRuns(c.Request().Context(), limit)
	if err != nil {
		return h.internalError(c, "sync_history", err)
	}
	return respondWithJSON(c, http.StatusOK, runs)
}

// SyncSummary handles GET /api/sync/summary.
func (h *Handler) SyncSummary(c echo.Context) error {
	ctx := c.Request().Context()
	summary, err := cached(h, cacheKeySummary, func() (*models.Summary, error) {
		return h.store.GetSummary(ctx)
	})
	if err != nil {
		return h.internalError(c, "sync_summary", err)
	}
	return respondWithJSON(c, http.StatusOK, summary)
}
