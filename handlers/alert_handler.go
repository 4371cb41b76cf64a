// handlers/alert_handler.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gewnthar/parkalerts/database"
)

// ListAlerts handles GET /api/alerts. Only active alerts are returned unless
// include_inactive=true; future=true|false selects one horizon.
func (h *Handler) ListAlerts(c echo.Context) error {
	var filter database.AlertFilter

	if raw := c.QueryParam("include_inactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return respondWithError(c, http.StatusBadRequest, "include_inactive must be true or false")
		}
		filter.IncludeInactive = v
	}
	if raw := c.QueryParam("future"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return respondWithError(c, http.StatusBadRequest, "future must be true or false")
		}
		filter.Future = &v
	}
	filter.ParkID = c.QueryParam("park_id")

	alerts, err := h.store.ListAlerts(c.Request().Context(), filter)
	if err != nil {
		return h.internalError(c, "list_alerts", err)
	}
	return respondWithJSON(c, http.StatusOK, alerts)
}
