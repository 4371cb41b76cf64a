// handlers/reserve_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/gewnthar/parkalerts/database"
	"github.com/gewnthar/parkalerts/models"
)

const (
	cacheKeyReserves = "reserves:all"
	cacheKeyGeoJSON  = "reserves:geojson"
	searchLimit      = 50
)

// ListReserves handles GET /api/reserves[?q=].
func (h *Handler) ListReserves(c echo.Context) error {
	ctx := c.Request().Context()

	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		reserves, err := h.store.SearchReserves(ctx, q, searchLimit)
		if err != nil {
			return h.internalError(c, "search_reserves", err)
		}
		return respondWithJSON(c, http.StatusOK, reserves)
	}

	reserves, err := cached(h, cacheKeyReserves, func() ([]models.Reserve, error) {
		return h.store.ListReserves(ctx)
	})
	if err != nil {
		return h.internalError(c, "list_reserves", err)
	}
	return respondWithJSON(c, http.StatusOK, reserves)
}

// GetReserve handles GET /api/reserves/:id.
func (h *Handler) GetReserve(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return respondWithError(c, http.StatusBadRequest, "reserve id must be an integer")
	}

	reserve, err := h.store.GetReserve(c.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return respondWithError(c, http.StatusNotFound, "reserve not found")
	}
	if err != nil {
		return h.internalError(c, "get_reserve", err)
	}
	return respondWithJSON(c, http.StatusOK, reserve)
}

// ReservesGeoJSON handles GET /api/reserves.geojson: one point feature per
// reserve with a known centroid.
func (h *Handler) ReservesGeoJSON(c echo.Context) error {
	ctx := c.Request().Context()
	fc, err := cached(h, cacheKeyGeoJSON, func() (*geojson.FeatureCollection, error) {
		reserves, err := h.store.ListReserves(ctx)
		if err != nil {
			return nil, err
		}
		return reservesToGeoJSON(reserves), nil
	})
	if err != nil {
		return h.internalError(c, "reserves_geojson", err)
	}

	body, err := fc.MarshalJSON()
	if err != nil {
		return h.internalError(c, "marshal_geojson", err)
	}
	return c.Blob(http.StatusOK, "application/geo+json", body)
}

func reservesToGeoJSON(reserves []models.Reserve) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range reserves {
		if !r.HasCentroid() {
			continue
		}
		f := geojson.NewFeature(orb.Point{*r.CentroidLon, *r.CentroidLat})
		f.ID = r.ObjectID
		f.Properties["object_id"] = r.ObjectID
		f.Properties["name"] = r.Name
		if r.ShortName != "" {
			f.Properties["short_name"] = r.ShortName
		}
		if r.ReserveType != "" {
			f.Properties["reserve_type"] = r.ReserveType
		}
		if r.GISArea != nil {
			f.Properties["gis_area"] = *r.GISArea
		}
		fc.Append(f)
	}
	return fc
}

// ListParks handles GET /api/parks.
func (h *Handler) ListParks(c echo.Context) error {
	parks, err := h.store.ListParks(c.Request().Context())
	if err != nil {
		return h.internalError(c, "list_parks", err)
	}
	return respondWithJSON(c, http.StatusOK, parks)
}
