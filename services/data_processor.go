// services/data_processor.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gewnthar/parkalerts/apperrors"
	"github.com/gewnthar/parkalerts/database"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/matching"
	"github.com/gewnthar/parkalerts/metrics"
	"github.com/gewnthar/parkalerts/models"
	"github.com/gewnthar/parkalerts/scraper"
)

// AlertSource fetches one horizon of the alert feed.
type AlertSource interface {
	FetchAlerts(ctx context.Context, future bool) ([]models.ParkAlertGroup, error)
}

// ReserveSource fetches the full reserve catalog.
type ReserveSource interface {
	FetchReserves(ctx context.Context) ([]models.ReserveRecord, error)
}

// OverrideLoader reads the operator override table.
type OverrideLoader interface {
	LoadOverrides() ([]models.ParkOverride, error)
}

// SyncStore is the persistence the processor writes through.
type SyncStore interface {
	UpsertReserves(ctx context.Context, reserves []models.Reserve) (int, error)
	ListReserves(ctx context.Context) ([]models.Reserve, error)
	GetMappings(ctx context.Context) (map[string]models.ParkMapping, error)
	CreateMappings(ctx context.Context, mappings []models.ParkMapping) (int, error)
	ReconcileAlerts(ctx context.Context, batch database.AlertBatch) (database.ReconcileResult, error)
	StartSyncRun(ctx context.Context, run *models.SyncRun) error
	UpdateSyncStage(ctx context.Context, id int64, stage models.Stage) error
	FinalizeSyncRun(ctx context.Context, run *models.SyncRun) error
}

// ProcessorOptions tunes one DataProcessor.
type ProcessorOptions struct {
	Matching matching.Options
	// KeepAlertsOnFetchFailure leaves a horizon's active alerts untouched when
	// its fetch fails. When false a failed fetch counts as zero alerts.
	KeepAlertsOnFetchFailure bool
	// TimeZone applies to alert dates that carry no offset. Defaults to UTC.
	TimeZone *time.Location
}

// DataProcessor runs one full reconciliation: reserves, then mappings, then
// alerts, recording the run in sync_history.
type DataProcessor struct {
	store     SyncStore
	alerts    AlertSource
	reserves  ReserveSource
	overrides OverrideLoader
	opts      ProcessorOptions
	metrics   *metrics.SyncMetrics
	logger    *slog.Logger
}

func NewDataProcessor(store SyncStore, alerts AlertSource, reserves ReserveSource, overrides OverrideLoader, opts ProcessorOptions, m *metrics.SyncMetrics) *DataProcessor {
	if opts.TimeZone == nil {
		opts.TimeZone = time.UTC
	}
	return &DataProcessor{
		store:     store,
		alerts:    alerts,
		reserves:  reserves,
		overrides: overrides,
		opts:      opts,
		metrics:   m,
		logger:    logging.ForService("data-processor"),
	}
}

// horizonFetch is the outcome of fetching one alert horizon.
type horizonFetch struct {
	future bool
	ok     bool
	groups []models.ParkAlertGroup
}

// Run executes one reconciliation. The returned run is finalized; err is
// non-nil only when the run failed as a whole.
func (p *DataProcessor) Run(ctx context.Context, runType models.RunType) (run *models.SyncRun, err error) {
	run = &models.SyncRun{RunID: uuid.NewString(), RunType: runType}
	if err := p.store.StartSyncRun(ctx, run); err != nil {
		return nil, storageError(err, "start_run")
	}

	log := p.logger.With("run_id", run.RunID, "run_type", runType)
	log.Info("sync run started")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
		p.finalize(context.WithoutCancel(ctx), log, run, err, time.Since(start))
	}()

	if err := p.syncReserves(ctx, log, run); err != nil {
		return run, err
	}
	p.advance(ctx, log, run, models.StageReservesSynced)

	overrides := p.loadOverrides(log, run)

	current := p.fetchHorizon(ctx, log, run, false)
	future := p.fetchHorizon(ctx, log, run, true)

	if err := p.refreshMappings(ctx, log, run, overrides, current, future); err != nil {
		return run, err
	}
	p.advance(ctx, log, run, models.StageMappingsRefreshed)

	if err := p.reconcileAlerts(ctx, log, run, current, future); err != nil {
		return run, err
	}
	p.advance(ctx, log, run, models.StageAlertsReconciled)

	return run, nil
}

// syncReserves refreshes the reserve catalog. A failed fetch is counted and
// the step skipped; a failed write fails the run.
func (p *DataProcessor) syncReserves(ctx context.Context, log *slog.Logger, run *models.SyncRun) error {
	records, err := p.reserves.FetchReserves(ctx)
	if err != nil {
		run.ErrorCount++
		p.metrics.RecordSourceError("reserves")
		log.Warn("reserve fetch failed, continuing with stored reserves", "error", err)
		return nil
	}
	run.ReservesFetched = len(records)

	reserves := make([]models.Reserve, 0, len(records))
	for i, rec := range records {
		r, err := toReserve(rec)
		if err != nil {
			run.ErrorCount++
			log.Warn("skipping invalid reserve record", "index", i, "error", err)
			continue
		}
		reserves = append(reserves, r)
	}

	n, err := p.store.UpsertReserves(ctx, reserves)
	if err != nil {
		return storageError(err, "upsert_reserves")
	}
	run.ReservesProcessed = n
	p.metrics.RecordDataset("reserves", run.ReservesFetched, n)
	log.Info("reserves synced", "fetched", run.ReservesFetched, "processed", n)
	return nil
}

// overrideSet is the outcome of loading the override table. Parks in held
// must not be matched automatically this run: their override exists but could
// not be used, and an automatic mapping would shadow it permanently. When the
// table could not be loaded at all, every park is held.
type overrideSet struct {
	overrides []models.ParkOverride
	held      map[string]bool
	holdAll   bool
}

func (o overrideSet) holds(parkID string) bool {
	return o.holdAll || o.held[parkID]
}

func (p *DataProcessor) loadOverrides(log *slog.Logger, run *models.SyncRun) overrideSet {
	overrides, err := p.overrides.LoadOverrides()

	var invalid *scraper.InvalidOverridesError
	switch {
	case err == nil:
		return overrideSet{overrides: overrides}
	case errors.As(err, &invalid):
		set := overrideSet{overrides: overrides, held: make(map[string]bool)}
		for _, id := range invalid.ParkIDs() {
			set.held[id] = true
		}
		for _, row := range invalid.Rows {
			run.ErrorCount++
			log.Warn("skipping invalid override row", "row", row.Row, "park_id", row.ParkID, "error", row.Err)
		}
		return set
	default:
		run.ErrorCount++
		log.Warn("override table unusable, deferring automatic matching", "error", err)
		return overrideSet{holdAll: true}
	}
}

func (p *DataProcessor) fetchHorizon(ctx context.Context, log *slog.Logger, run *models.SyncRun, future bool) horizonFetch {
	horizon := models.Horizon(future)
	groups, err := p.alerts.FetchAlerts(ctx, future)
	if err != nil {
		run.ErrorCount++
		p.metrics.RecordSourceError("alerts_" + horizon)
		log.Warn("alert fetch failed", "horizon", horizon, "error", err)
		return horizonFetch{future: future}
	}

	fetched := 0
	for _, g := range groups {
		fetched += len(g.Alerts)
	}
	if future {
		run.FutureFetched = fetched
	} else {
		run.CurrentFetched = fetched
	}
	run.AlertsFetched += fetched
	return horizonFetch{future: future, ok: true, groups: groups}
}

// refreshMappings creates mapping rows for override entries and fetched parks
// that have none yet. Existing rows are never re-evaluated.
func (p *DataProcessor) refreshMappings(ctx context.Context, log *slog.Logger, run *models.SyncRun, overrides overrideSet, fetches ...horizonFetch) error {
	existing, err := p.store.GetMappings(ctx)
	if err != nil {
		return storageError(err, "load_mappings")
	}
	reserves, err := p.store.ListReserves(ctx)
	if err != nil {
		return storageError(err, "load_reserves")
	}
	matcher, err := matching.New(reserves, overrides.overrides, p.opts.Matching)
	if err != nil {
		return err
	}

	var pending []models.ParkMapping
	queued := make(map[string]bool)
	queue := func(m models.ParkMapping) {
		if _, ok := existing[m.ParkID]; ok || queued[m.ParkID] {
			return
		}
		queued[m.ParkID] = true
		pending = append(pending, m)
	}

	for _, m := range matcher.OverrideMappings() {
		queue(m)
	}

	unmatched, held := 0, 0
	for _, park := range fetchedParks(fetches) {
		if _, ok := existing[park.ID]; ok || queued[park.ID] {
			continue
		}
		if overrides.holds(park.ID) {
			held++
			continue
		}
		res := matcher.Resolve(park)
		if m, ok := res.Mapping(park); ok {
			queue(m)
			continue
		}
		unmatched++
		log.Debug("park has no reserve match", "park_id", park.ID, "park_name", park.Name,
			"kind", apperrors.KindMatchUnresolved)
	}

	created, err := p.store.CreateMappings(ctx, pending)
	if err != nil {
		run.ErrorCount++
		log.Warn("failed to store new park mappings, affected alerts stay unmatched",
			"mappings", len(pending), "error", err)
		return nil
	}
	run.MappingsCreated = created
	log.Info("park mappings refreshed", "created", created, "unmatched", unmatched, "held", held)
	return nil
}

// fetchedParks lists each park of the successful fetches once, ordered by id.
func fetchedParks(fetches []horizonFetch) []matching.Park {
	seen := make(map[string]matching.Park)
	for _, f := range fetches {
		for _, g := range f.groups {
			id := strings.TrimSpace(g.Park.ID)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; !ok {
				seen[id] = matching.Park{ID: id, Name: strings.TrimSpace(g.Park.Name)}
			}
		}
	}
	parks := make([]matching.Park, 0, len(seen))
	for _, park := range seen {
		parks = append(parks, park)
	}
	sort.Slice(parks, func(i, j int) bool { return parks[i].ID < parks[j].ID })
	return parks
}

// reconcileAlerts converts the fetched alerts and applies them in one
// transaction together with the inactive flip.
func (p *DataProcessor) reconcileAlerts(ctx context.Context, log *slog.Logger, run *models.SyncRun, fetches ...horizonFetch) error {
	batch := database.AlertBatch{}

	for _, f := range fetches {
		reset := f.ok || !p.opts.KeepAlertsOnFetchFailure
		if f.future {
			batch.ResetFuture = reset
		} else {
			batch.ResetCurrent = reset
		}
		if !f.ok && !reset {
			log.Info("keeping previous alerts for unavailable horizon", "horizon", models.Horizon(f.future))
		}

		keys := make(map[models.AlertKey]struct{})
		for _, g := range f.groups {
			for _, src := range g.Alerts {
				a, err := p.toAlert(g, src, f.future)
				if err != nil {
					run.ErrorCount++
					log.Warn("skipping invalid alert", "horizon", models.Horizon(f.future),
						"park_id", g.Park.ID, "alert_id", src.ID, "error", err)
					continue
				}
				keys[a.Key()] = struct{}{}
				batch.Alerts = append(batch.Alerts, a)
			}
		}

		if f.future {
			run.FutureProcessed = len(keys)
			p.metrics.RecordDataset("future", run.FutureFetched, run.FutureProcessed)
		} else {
			run.CurrentProcessed = len(keys)
			p.metrics.RecordDataset("current", run.CurrentFetched, run.CurrentProcessed)
		}
	}

	res, err := p.store.ReconcileAlerts(ctx, batch)
	if err != nil {
		run.CurrentProcessed = 0
		run.FutureProcessed = 0
		return storageError(err, "reconcile_alerts")
	}
	run.AlertsProcessed = res.Upserted
	run.AlertsDeactivated = res.Deactivated
	log.Info("alerts reconciled",
		"fetched", run.AlertsFetched,
		"processed", res.Upserted,
		"deactivated", res.Deactivated)
	return nil
}

func (p *DataProcessor) advance(ctx context.Context, log *slog.Logger, run *models.SyncRun, stage models.Stage) {
	run.Stage = stage
	if err := p.store.UpdateSyncStage(ctx, run.ID, stage); err != nil {
		log.Warn("failed to record sync stage", "stage", stage, "error", err)
	}
}

func (p *DataProcessor) finalize(ctx context.Context, log *slog.Logger, run *models.SyncRun, runErr error, elapsed time.Duration) {
	if runErr != nil {
		run.Status = models.RunStatusFailed
		msg := runErr.Error()
		run.ErrorMessage = &msg
		run.ErrorCount++
	} else {
		run.Status = models.RunStatusCompleted
		run.Stage = models.StageCompleted
	}

	if err := p.store.FinalizeSyncRun(ctx, run); err != nil {
		log.Error("failed to finalize sync run", "error", err)
	}
	p.metrics.RecordRun(string(run.RunType), string(run.Status), elapsed, run.ErrorCount)

	attrs := []any{
		"status", run.Status,
		"stage", run.Stage,
		"elapsed", elapsed.Round(time.Millisecond),
		"reserves_fetched", run.ReservesFetched,
		"reserves_processed", run.ReservesProcessed,
		"alerts_fetched", run.AlertsFetched,
		"alerts_processed", run.AlertsProcessed,
		"errors", run.ErrorCount,
	}
	if runErr != nil {
		log.Error("sync run failed", append(attrs, "error", runErr)...)
		return
	}
	log.Info("sync run completed", attrs...)
}

func storageError(err error, op string) error {
	return apperrors.New(err).
		Kind(apperrors.KindStorageFailure).
		Component("data-processor").
		Context("operation", op).
		Build()
}

func invalidRecord(format string, args ...any) error {
	return apperrors.Newf(format, args...).Kind(apperrors.KindRecordInvalid).Build()
}

func toReserve(rec models.ReserveRecord) (models.Reserve, error) {
	if rec.ObjectID == nil {
		return models.Reserve{}, invalidRecord("reserve without object_id")
	}
	if rec.Name == nil || strings.TrimSpace(*rec.Name) == "" {
		return models.Reserve{}, invalidRecord("reserve %d without name", *rec.ObjectID)
	}

	r := models.Reserve{
		ObjectID:     *rec.ObjectID,
		Name:         strings.TrimSpace(*rec.Name),
		ShortName:    rec.ShortName,
		Location:     rec.Location,
		ReserveType:  rec.ReserveType,
		GISArea:      rec.GISArea,
		GazettedArea: rec.GazettedArea,
	}
	if rec.GazettalDate != nil {
		t := time.UnixMilli(*rec.GazettalDate).UTC()
		r.GazettalDate = &t
	}
	if rec.Centroid != nil {
		lat, lon := rec.Centroid.Lat(), rec.Centroid.Lon()
		r.CentroidLat = &lat
		r.CentroidLon = &lon
	}
	return r, nil
}

func (p *DataProcessor) toAlert(g models.ParkAlertGroup, src models.SourceAlert, future bool) (models.Alert, error) {
	alertID := strings.TrimSpace(src.ID)
	parkID := strings.TrimSpace(g.Park.ID)
	title := strings.TrimSpace(src.Title)
	switch {
	case alertID == "":
		return models.Alert{}, invalidRecord("alert without id")
	case parkID == "":
		return models.Alert{}, invalidRecord("alert %s without park id", alertID)
	case title == "":
		return models.Alert{}, invalidRecord("alert %s without title", alertID)
	}

	from, err := parseAlertTime(src.EffectiveFrom, p.opts.TimeZone)
	if err != nil {
		return models.Alert{}, invalidRecord("alert %s effectiveFrom: %v", alertID, err)
	}
	to, err := parseAlertTime(src.EffectiveTo, p.opts.TimeZone)
	if err != nil {
		return models.Alert{}, invalidRecord("alert %s effectiveTo: %v", alertID, err)
	}
	reviewed, err := parseAlertTime(src.LastReviewed, p.opts.TimeZone)
	if err != nil {
		return models.Alert{}, invalidRecord("alert %s lastReviewed: %v", alertID, err)
	}

	return models.Alert{
		AlertID:         alertID,
		ParkID:          parkID,
		IsFuture:        future,
		ParkName:        strings.TrimSpace(g.Park.Name),
		Title:           title,
		Description:     src.DescriptionHTML,
		DescriptionText: scraper.HTMLToText(src.DescriptionHTML),
		Category:        strings.TrimSpace(src.Category),
		EffectiveFrom:   from,
		EffectiveTo:     to,
		LastReviewed:    reviewed,
		ParkClosed:      g.ParkClosed,
		ParkPartClosed:  g.ParkPartClosed,
	}, nil
}

var alertTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006",
}

var errUnparseableTime = errors.New("unrecognized time format")

// parseAlertTime returns nil for an empty value.
func parseAlertTime(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range alertTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errUnparseableTime, raw)
}
