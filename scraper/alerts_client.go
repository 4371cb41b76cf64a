// scraper/alerts_client.go
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gewnthar/parkalerts/apperrors"
	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

const userAgent = "parkalerts/1.0"

// maxBodyBytes caps one upstream response.
const maxBodyBytes = 64 << 20

// AlertClient fetches the current and future alert lists.
type AlertClient struct {
	currentURL string
	futureURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewAlertClient(cfg config.AlertSourceConfig) *AlertClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AlertClient{
		currentURL: cfg.CurrentURL,
		futureURL:  cfg.FutureURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.ForService("alert-client"),
	}
}

// FetchAlerts returns the park groups of one horizon.
func (c *AlertClient) FetchAlerts(ctx context.Context, future bool) ([]models.ParkAlertGroup, error) {
	url := c.currentURL
	if future {
		url = c.futureURL
	}
	horizon := models.Horizon(future)

	if url == "" {
		return nil, sourceError(fmt.Errorf("no URL configured"), "alert-client", "horizon", horizon)
	}

	body, err := getBody(ctx, c.httpClient, url)
	if err != nil {
		return nil, sourceError(err, "alert-client", "horizon", horizon)
	}

	groups, err := decodeAlertGroups(body)
	if err != nil {
		return nil, sourceError(err, "alert-client", "horizon", horizon)
	}

	alerts := 0
	for _, g := range groups {
		alerts += len(g.Alerts)
	}
	c.logger.Info("fetched alerts", "horizon", horizon, "parks", len(groups), "alerts", alerts)
	return groups, nil
}

// decodeAlertGroups accepts either a bare array of park groups or an object
// wrapping them under "parks".
func decodeAlertGroups(body []byte) ([]models.ParkAlertGroup, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	var groups []models.ParkAlertGroup
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &groups); err != nil {
			return nil, fmt.Errorf("failed to decode alert list: %w", err)
		}
		return groups, nil
	}

	var wrapped struct {
		Parks []models.ParkAlertGroup `json:"parks"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode alert list: %w", err)
	}
	return wrapped.Parks, nil
}

func getBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: received status code %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return body, nil
}

func sourceError(err error, component string, kv ...any) error {
	b := apperrors.New(err).Kind(apperrors.KindSourceUnavailable).Component(component)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			b.Context(key, kv[i+1])
		}
	}
	return b.Build()
}
