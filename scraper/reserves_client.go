// scraper/reserves_client.go
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/time/rate"

	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

// Attribute names of the reserve feature layer. Lookups ignore case.
const (
	attrObjectID     = "objectid"
	attrName         = "name"
	attrShortName    = "name_short"
	attrLocation     = "location"
	attrReserveType  = "type"
	attrGISArea      = "gisarea"
	attrGazettedArea = "gaz_area"
	attrGazettalDate = "gaz_date"
)

// ReserveClient pages through an ArcGIS feature-layer query endpoint.
type ReserveClient struct {
	baseURL    string
	pageSize   int
	maxPages   int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewReserveClient(cfg config.ReserveSourceConfig) *ReserveClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &ReserveClient{
		baseURL:    cfg.URL,
		pageSize:   pageSize,
		maxPages:   maxPages,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logging.ForService("reserve-client"),
	}
}

type featurePage struct {
	Features              []feature  `json:"features"`
	ExceededTransferLimit bool       `json:"exceededTransferLimit"`
	Error                 *arcgisErr `json:"error"`
}

type arcgisErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *geometry      `json:"geometry"`
}

type geometry struct {
	X     *float64       `json:"x"`
	Y     *float64       `json:"y"`
	Rings [][][2]float64 `json:"rings"`
}

// FetchReserves returns every feature of the layer. A failure on any page
// fails the whole fetch; a partial catalog is never returned.
func (c *ReserveClient) FetchReserves(ctx context.Context) ([]models.ReserveRecord, error) {
	if c.baseURL == "" {
		return nil, sourceError(fmt.Errorf("no URL configured"), "reserve-client")
	}

	var records []models.ReserveRecord
	for page := 0; page < c.maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, sourceError(err, "reserve-client", "page", page)
		}

		offset := page * c.pageSize
		fp, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, sourceError(err, "reserve-client", "page", page, "offset", offset)
		}
		for _, f := range fp.Features {
			records = append(records, toReserveRecord(f))
		}

		c.logger.Debug("fetched reserve page", "page", page, "features", len(fp.Features))
		if !fp.ExceededTransferLimit || len(fp.Features) == 0 {
			c.logger.Info("fetched reserves", "pages", page+1, "records", len(records))
			return records, nil
		}
	}
	return nil, sourceError(fmt.Errorf("more than %d pages of reserves", c.maxPages), "reserve-client")
}

func (c *ReserveClient) fetchPage(ctx context.Context, offset int) (*featurePage, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid reserves URL: %w", err)
	}
	q := u.Query()
	if q.Get("where") == "" {
		q.Set("where", "1=1")
	}
	if q.Get("outFields") == "" {
		q.Set("outFields", "*")
	}
	q.Set("returnGeometry", "true")
	q.Set("outSR", "4326")
	q.Set("f", "json")
	q.Set("orderByFields", "OBJECTID")
	q.Set("resultOffset", strconv.Itoa(offset))
	q.Set("resultRecordCount", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()

	body, err := getBody(ctx, c.httpClient, u.String())
	if err != nil {
		return nil, err
	}

	var fp featurePage
	if err := json.Unmarshal(body, &fp); err != nil {
		return nil, fmt.Errorf("failed to decode reserve page: %w", err)
	}
	if fp.Error != nil {
		return nil, fmt.Errorf("arcgis error %d: %s", fp.Error.Code, fp.Error.Message)
	}
	return &fp, nil
}

func toReserveRecord(f feature) models.ReserveRecord {
	attrs := make(map[string]any, len(f.Attributes))
	for k, v := range f.Attributes {
		attrs[strings.ToLower(k)] = v
	}

	rec := models.ReserveRecord{
		ObjectID:     intAttr(attrs, attrObjectID),
		Name:         stringAttr(attrs, attrName),
		Location:     stringAttr(attrs, attrLocation),
		GISArea:      floatAttr(attrs, attrGISArea),
		GazettedArea: floatAttr(attrs, attrGazettedArea),
		GazettalDate: intAttr(attrs, attrGazettalDate),
	}
	if s := stringAttr(attrs, attrShortName); s != nil {
		rec.ShortName = *s
	}
	if s := stringAttr(attrs, attrReserveType); s != nil {
		rec.ReserveType = *s
	}
	if f.Geometry != nil {
		rec.Centroid = centroid(*f.Geometry)
	}
	return rec
}

// centroid returns the area centroid of a polygon geometry, or the point
// itself for point geometries. ArcGIS lists outer rings clockwise and holes
// counter-clockwise.
func centroid(g geometry) *orb.Point {
	if g.X != nil && g.Y != nil {
		p := orb.Point{*g.X, *g.Y}
		return &p
	}
	if len(g.Rings) == 0 {
		return nil
	}

	var mp orb.MultiPolygon
	for _, raw := range g.Rings {
		if len(raw) < 4 {
			continue
		}
		ring := make(orb.Ring, len(raw))
		for i, xy := range raw {
			ring[i] = orb.Point{xy[0], xy[1]}
		}
		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}
	if len(mp) == 0 {
		return nil
	}

	p, area := planar.CentroidArea(mp)
	if area == 0 || math.IsNaN(p[0]) || math.IsNaN(p[1]) {
		return nil
	}
	return &p
}

func stringAttr(attrs map[string]any, key string) *string {
	s, ok := attrs[key].(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func floatAttr(attrs map[string]any, key string) *float64 {
	switch v := attrs[key].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func intAttr(attrs map[string]any, key string) *int64 {
	f := floatAttr(attrs, key)
	if f == nil || *f != math.Trunc(*f) {
		return nil
	}
	i := int64(*f)
	return &i
}
