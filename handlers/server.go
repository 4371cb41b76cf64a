// handlers/server.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gewnthar/parkalerts/database"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

// ReadStore is the query side of the database the API serves from.
type ReadStore interface {
	Ping(ctx context.Context) error
	ListReserves(ctx context.Context) ([]models.Reserve, error)
	SearchReserves(ctx context.Context, query string, limit int) ([]models.Reserve, error)
	GetReserve(ctx context.Context, objectID int64) (*models.Reserve, error)
	ListParks(ctx context.Context) ([]database.ParkSummary, error)
	ListAlerts(ctx context.Context, filter database.AlertFilter) ([]models.AlertView, error)
	RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
	GetSummary(ctx context.Context) (*models.Summary, error)
}

// SyncTrigger starts out-of-band runs and reports scheduler state.
type SyncTrigger interface {
	Trigger(runType models.RunType) error
	Running() bool
	NextRun() time.Time
}

// Handler serves the read API. It never writes to the store.
type Handler struct {
	store  ReadStore
	sync   SyncTrigger
	cache  *cache.Cache
	logger *slog.Logger
}

func New(store ReadStore, sync SyncTrigger, cacheTTL time.Duration) *Handler {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Handler{
		store:  store,
		sync:   sync,
		cache:  cache.New(cacheTTL, 2*cacheTTL),
		logger: logging.ForService("api"),
	}
}

// NewServer builds an echo instance with every route registered. A nil
// gatherer leaves /metrics unregistered.
func NewServer(h *Handler, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(h.logger))
	h.Register(e)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

// Register attaches the API routes to e.
func (h *Handler) Register(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/reserves", h.ListReserves)
	api.GET("/reserves.geojson", h.ReservesGeoJSON)
	api.GET("/reserves/:id", h.GetReserve)
	api.GET("/parks", h.ListParks)
	api.GET("/alerts", h.ListAlerts)
	api.GET("/sync/history", h.SyncHistory)
	api.GET("/sync/summary", h.SyncSummary)
	api.POST("/admin/sync", h.TriggerSync)
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), slog.LevelDebug, "request", attrs...)
			return nil
		},
	})
}

func respondWithJSON(c echo.Context, code int, payload any) error {
	return c.JSON(code, payload)
}

func respondWithError(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]string{"error": message})
}

// internalError logs err and hides it from the client.
func (h *Handler) internalError(c echo.Context, op string, err error) error {
	h.logger.Error("request failed", "operation", op, "error", err)
	return respondWithError(c, http.StatusInternalServerError, "internal error")
}

// InvalidateCache drops every cached response. It is called once a sync run
// has been finalized.
func (h *Handler) InvalidateCache(*models.SyncRun) {
	h.cache.Flush()
}

// cached returns the cached value for key or computes and stores it.
func cached[T any](h *Handler, key string, load func() (T, error)) (T, error) {
	if v, ok := h.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	h.cache.SetDefault(key, v)
	return v, nil
}
