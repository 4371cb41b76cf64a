package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/database"
	"github.com/gewnthar/parkalerts/matching"
	"github.com/gewnthar/parkalerts/models"
	"github.com/gewnthar/parkalerts/scraper"
)

func ptr[T any](v T) *T { return &v }

type fakeAlerts struct {
	current, future       []models.ParkAlertGroup
	currentErr, futureErr error
}

func (f *fakeAlerts) FetchAlerts(_ context.Context, future bool) ([]models.ParkAlertGroup, error) {
	if future {
		return f.future, f.futureErr
	}
	return f.current, f.currentErr
}

type fakeReserves struct {
	records []models.ReserveRecord
	err     error
}

func (f *fakeReserves) FetchReserves(context.Context) ([]models.ReserveRecord, error) {
	return f.records, f.err
}

type fakeOverrides struct {
	overrides []models.ParkOverride
	err       error
}

func (f *fakeOverrides) LoadOverrides() ([]models.ParkOverride, error) {
	return f.overrides, f.err
}

type harness struct {
	store     *database.Store
	alerts    *fakeAlerts
	reserves  *fakeReserves
	overrides *fakeOverrides
	opts      ProcessorOptions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		store:     database.NewTestStore(t),
		alerts:    &fakeAlerts{},
		reserves:  &fakeReserves{},
		overrides: &fakeOverrides{},
		opts: ProcessorOptions{
			Matching: matching.Options{
				SuffixPatterns: config.DefaultSuffixPatterns,
				LocationRules:  config.DefaultLocationRules,
			},
		},
	}
}

func (h *harness) processor() *DataProcessor {
	return NewDataProcessor(h.store, h.alerts, h.reserves, h.overrides, h.opts, nil)
}

func (h *harness) run(t *testing.T) *models.SyncRun {
	t.Helper()
	run, err := h.processor().Run(context.Background(), models.RunTypeManual)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func reserveRecord(id int64, name string) models.ReserveRecord {
	return models.ReserveRecord{ObjectID: ptr(id), Name: ptr(name)}
}

func group(parkID, parkName string, alerts ...models.SourceAlert) models.ParkAlertGroup {
	return models.ParkAlertGroup{Park: models.SourcePark{ID: parkID, Name: parkName}, Alerts: alerts}
}

func srcAlert(id, title string) models.SourceAlert {
	return models.SourceAlert{ID: id, Title: title, DescriptionHTML: "<p>" + title + "</p>", Category: "Closed areas"}
}

func alertRow(t *testing.T, store *database.Store, id, park string, future bool) *models.Alert {
	t.Helper()
	a, err := store.GetAlert(context.Background(), models.AlertKey{AlertID: id, ParkID: park, IsFuture: future})
	require.NoError(t, err)
	return a
}

func mappingFor(t *testing.T, store *database.Store, parkID string) (models.ParkMapping, bool) {
	t.Helper()
	mappings, err := store.GetMappings(context.Background())
	require.NoError(t, err)
	m, ok := mappings[parkID]
	return m, ok
}

func TestRun_WollemiScenario(t *testing.T) {
	h := newHarness(t)
	h.reserves.records = []models.ReserveRecord{reserveRecord(42, "Wollemi National Park")}
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Wollemi NP", srcAlert("A1", "Fire"))}

	run := h.run(t)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.StageCompleted, run.Stage)
	assert.Equal(t, 1, run.MappingsCreated)

	m, ok := mappingFor(t, h.store, "P1")
	require.True(t, ok)
	require.NotNil(t, m.ObjectID)
	assert.Equal(t, int64(42), *m.ObjectID)
	assert.Equal(t, models.MatchSourceExact, m.MatchSource)

	views, err := h.store.ListAlerts(context.Background(), database.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].ObjectID)
	assert.Equal(t, int64(42), *views[0].ObjectID)
	assert.Equal(t, "Fire", views[0].DescriptionText)
}

func TestRun_AlertAgesOut(t *testing.T) {
	h := newHarness(t)
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Somewhere", srcAlert("A1", "Fire"))}
	first := h.run(t)
	assert.Equal(t, 1, first.AlertsProcessed)

	h.alerts.current = nil
	second := h.run(t)
	assert.Equal(t, models.RunStatusCompleted, second.Status)
	assert.Equal(t, 1, second.AlertsDeactivated)

	a1 := alertRow(t, h.store, "A1", "P1", false)
	assert.False(t, a1.IsActive)
	assert.Equal(t, "Fire", a1.Title, "deactivated rows keep their attributes")

	total, _, err := h.store.CountAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	history, err := h.store.RecentSyncRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, r := range history {
		assert.Equal(t, models.RunStatusCompleted, r.Status)
	}
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.reserves.records = []models.ReserveRecord{reserveRecord(42, "Wollemi National Park"), reserveRecord(1, "Royal National Park")}
	h.alerts.current = []models.ParkAlertGroup{
		group("P1", "Wollemi NP", srcAlert("A1", "Fire"), srcAlert("A2", "Flood")),
		group("P2", "Royal National Park", srcAlert("A3", "Track works")),
	}
	h.alerts.future = []models.ParkAlertGroup{group("P1", "Wollemi NP", srcAlert("A1", "Fire"))}

	first := h.run(t)
	before, err := h.store.ListAlerts(context.Background(), database.AlertFilter{IncludeInactive: true})
	require.NoError(t, err)

	second := h.run(t)
	after, err := h.store.ListAlerts(context.Background(), database.AlertFilter{IncludeInactive: true})
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].IsActive, after[i].IsActive)
	}
	assert.Equal(t, first.AlertsFetched, second.AlertsFetched)
	assert.Equal(t, first.AlertsProcessed, second.AlertsProcessed)
	assert.Equal(t, 4, second.AlertsProcessed)
	assert.Equal(t, 3, second.CurrentProcessed)
	assert.Equal(t, 1, second.FutureProcessed)
	assert.Zero(t, second.AlertsDeactivated)
	assert.Equal(t, 2, first.MappingsCreated)
	assert.Zero(t, second.MappingsCreated)

	mappings, err := h.store.ListMappings(context.Background())
	require.NoError(t, err)
	assert.Len(t, mappings, 2)
}

func TestRun_ReserveFetchFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.reserves.err = errors.New("gis down")
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Wollemi NP", srcAlert("A1", "Fire"))}
	h.alerts.future = []models.ParkAlertGroup{group("P1", "Wollemi NP", srcAlert("F1", "Burn"))}

	run := h.run(t)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Zero(t, run.ReservesProcessed)
	assert.Positive(t, run.ErrorCount)
	assert.Equal(t, 2, run.AlertsProcessed)
	assert.True(t, alertRow(t, h.store, "A1", "P1", false).IsActive)
	assert.True(t, alertRow(t, h.store, "F1", "P1", true).IsActive)

	_, ok := mappingFor(t, h.store, "P1")
	assert.False(t, ok, "no reserves on hand means no automatic match")
}

func TestRun_HorizonFailuresAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Park", srcAlert("C1", "current"))}
	h.alerts.future = []models.ParkAlertGroup{group("P1", "Park", srcAlert("F1", "future"))}
	h.run(t)

	h.alerts.futureErr = errors.New("timeout")
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Park", srcAlert("C1", "current"), srcAlert("C2", "new"))}
	run := h.run(t)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.ErrorCount)
	assert.Equal(t, 2, run.CurrentFetched)
	assert.Equal(t, 2, run.CurrentProcessed)
	assert.Zero(t, run.FutureFetched)
	assert.True(t, alertRow(t, h.store, "C2", "P1", false).IsActive)
	assert.False(t, alertRow(t, h.store, "F1", "P1", true).IsActive, "a failed fetch counts as zero alerts by default")
}

func TestRun_KeepAlertsOnFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.opts.KeepAlertsOnFetchFailure = true
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Park", srcAlert("C1", "current"))}
	h.alerts.future = []models.ParkAlertGroup{group("P1", "Park", srcAlert("F1", "future"))}
	h.run(t)

	h.alerts.futureErr = errors.New("timeout")
	h.alerts.current = nil
	run := h.run(t)

	assert.Equal(t, 1, run.AlertsDeactivated)
	assert.False(t, alertRow(t, h.store, "C1", "P1", false).IsActive)
	assert.True(t, alertRow(t, h.store, "F1", "P1", true).IsActive, "unavailable horizon keeps its active set")
}

func TestRun_OverridePrecedenceAndSuppression(t *testing.T) {
	h := newHarness(t)
	h.reserves.records = []models.ReserveRecord{reserveRecord(42, "Wollemi National Park"), reserveRecord(1, "Royal National Park")}
	h.overrides.overrides = []models.ParkOverride{
		{ParkID: "P1", ParkName: "Wollemi NP", ObjectID: ptr(int64(1))},
		{ParkID: "P2", ParkName: "Royal National Park"},
		{ParkID: "P9", ParkName: "Not in feed", ObjectID: ptr(int64(42))},
	}
	h.alerts.current = []models.ParkAlertGroup{
		group("P1", "Wollemi NP", srcAlert("A1", "Fire")),
		group("P2", "Royal National Park", srcAlert("A2", "Flood")),
	}

	run := h.run(t)
	assert.Equal(t, 3, run.MappingsCreated)

	p1, ok := mappingFor(t, h.store, "P1")
	require.True(t, ok)
	assert.Equal(t, int64(1), *p1.ObjectID, "override wins over the exact match")
	assert.Equal(t, models.MatchSourceOverride, p1.MatchSource)

	p2, ok := mappingFor(t, h.store, "P2")
	require.True(t, ok)
	assert.Nil(t, p2.ObjectID, "explicit null override suppresses matching")

	_, ok = mappingFor(t, h.store, "P9")
	assert.True(t, ok, "overrides apply even for parks absent from this fetch")

	// Suppression is permanent, even once the override entry is removed.
	h.overrides.overrides = nil
	h.run(t)
	p2, _ = mappingFor(t, h.store, "P2")
	assert.Nil(t, p2.ObjectID)
}

func TestRun_MappingStability(t *testing.T) {
	h := newHarness(t)
	h.reserves.records = []models.ReserveRecord{reserveRecord(42, "Wollemi National Park")}
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Wollemi NP", srcAlert("A1", "Fire"))}
	h.run(t)

	// The catalog changes and an override appears; the existing row stays.
	h.reserves.records = []models.ReserveRecord{reserveRecord(7, "Wollemi National Park")}
	h.overrides.overrides = []models.ParkOverride{{ParkID: "P1", ObjectID: ptr(int64(99))}}
	h.run(t)

	m, _ := mappingFor(t, h.store, "P1")
	assert.Equal(t, int64(42), *m.ObjectID)

	// Clearing the row lets the override take effect on the next run.
	deleted, err := h.store.DeleteMapping(context.Background(), "P1")
	require.NoError(t, err)
	require.True(t, deleted)
	h.run(t)

	m, _ = mappingFor(t, h.store, "P1")
	assert.Equal(t, int64(99), *m.ObjectID)
}

func TestRun_InvalidRecordsAreCounted(t *testing.T) {
	h := newHarness(t)
	h.reserves.records = []models.ReserveRecord{
		reserveRecord(1, "Royal National Park"),
		{Name: ptr("No id")},
		{ObjectID: ptr(int64(2))},
		{ObjectID: ptr(int64(3)), Name: ptr("Centroid Park"), Centroid: &orb.Point{151.1, -33.9}, GazettalDate: ptr(int64(0))},
	}
	bad := srcAlert("A3", "Bad date")
	bad.EffectiveFrom = "next tuesday"
	h.alerts.current = []models.ParkAlertGroup{
		group("P1", "Royal National Park", srcAlert("A1", "Fire"), srcAlert("", "No id"), srcAlert("A2", " "), bad),
		group("", "No park id", srcAlert("A4", "Orphan")),
	}

	run := h.run(t)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, run.ReservesFetched)
	assert.Equal(t, 2, run.ReservesProcessed)
	assert.Equal(t, 5, run.CurrentFetched)
	assert.Equal(t, 1, run.CurrentProcessed)
	assert.Equal(t, 6, run.ErrorCount, "two reserves and four alerts were rejected")

	reserve, err := h.store.GetReserve(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, reserve.HasCentroid())
	assert.InDelta(t, -33.9, *reserve.CentroidLat, 1e-9)
	require.NotNil(t, reserve.GazettalDate)
}

func TestRun_ParsesAlertDates(t *testing.T) {
	h := newHarness(t)
	a := srcAlert("A1", "Fire")
	a.EffectiveFrom = "2026-03-01"
	a.EffectiveTo = "2026-03-05T18:00:00+11:00"
	a.LastReviewed = "2026-02-28 09:30:00"
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Park", a)}
	h.run(t)

	row := alertRow(t, h.store, "A1", "P1", false)
	require.NotNil(t, row.EffectiveFrom)
	require.NotNil(t, row.EffectiveTo)
	require.NotNil(t, row.LastReviewed)
	assert.Equal(t, 7, row.EffectiveTo.UTC().Hour())
	assert.Equal(t, 2026, row.EffectiveFrom.Year())
}

func TestRun_OverrideFileErrorIsCounted(t *testing.T) {
	h := newHarness(t)
	h.reserves.records = []models.ReserveRecord{reserveRecord(42, "Wollemi National Park")}
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Wollemi NP", srcAlert("A1", "Fire"))}
	h.overrides.err = errors.New("failed to decode overrides")

	run := h.run(t)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.ErrorCount)
	assert.Zero(t, run.MappingsCreated)
	_, ok := mappingFor(t, h.store, "P1")
	assert.False(t, ok, "automatic matching waits for a usable override table")
	assert.True(t, alertRow(t, h.store, "A1", "P1", false).IsActive)

	h.overrides.err = nil
	h.overrides.overrides = []models.ParkOverride{{ParkID: "P1", ObjectID: ptr(int64(99))}}
	h.run(t)
	m, ok := mappingFor(t, h.store, "P1")
	require.True(t, ok)
	assert.Equal(t, int64(99), *m.ObjectID)
}

func TestRun_InvalidOverrideRowIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.reserves.records = []models.ReserveRecord{reserveRecord(42, "Wollemi National Park"), reserveRecord(12, "Other Park")}
	h.alerts.current = []models.ParkAlertGroup{
		group("P1", "Wollemi NP", srcAlert("A1", "Fire")),
		group("P2", "Other Park", srcAlert("A2", "Flood")),
	}

	path := filepath.Join(t.TempDir(), "park_overrides.csv")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte("park_id,park_name,object_id,reserve_name\n"+body), 0o644))
	}
	p := NewDataProcessor(h.store, h.alerts, h.reserves, scraper.NewFileOverrideLoader(path), h.opts, nil)
	run := func() *models.SyncRun {
		r, err := p.Run(context.Background(), models.RunTypeManual)
		require.NoError(t, err)
		return r
	}

	write("P1,Wollemi NP,99,Operator Choice\nP2,Other,12x,\n")
	first := run()
	assert.Equal(t, models.RunStatusCompleted, first.Status)
	assert.Equal(t, 1, first.ErrorCount)

	p1, ok := mappingFor(t, h.store, "P1")
	require.True(t, ok)
	assert.Equal(t, int64(99), *p1.ObjectID, "valid rows still apply")
	assert.Equal(t, models.MatchSourceOverride, p1.MatchSource)
	_, ok = mappingFor(t, h.store, "P2")
	assert.False(t, ok, "a park with a rejected override row is not matched automatically")

	write("P1,Wollemi NP,99,Operator Choice\nP2,Other,12,\n")
	second := run()
	assert.Zero(t, second.ErrorCount)

	p2, ok := mappingFor(t, h.store, "P2")
	require.True(t, ok)
	assert.Equal(t, int64(12), *p2.ObjectID)
	assert.Equal(t, models.MatchSourceOverride, p2.MatchSource)
}

func TestRun_StorageFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	h.alerts.current = []models.ParkAlertGroup{group("P1", "Park", srcAlert("A1", "Fire"))}
	require.NoError(t, h.store.DB().Exec("DROP TABLE alerts").Error)

	run, err := h.processor().Run(context.Background(), models.RunTypeScheduled)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)

	stored, err := h.store.GetSyncRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, models.StageMappingsRefreshed, stored.Stage, "failed runs record where they stopped")
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "alerts")
	require.NotNil(t, stored.CompletedAt)
}

type panickingAlerts struct{}

func (panickingAlerts) FetchAlerts(context.Context, bool) ([]models.ParkAlertGroup, error) {
	panic("boom")
}

func TestRun_PanicFinalizesAsFailed(t *testing.T) {
	h := newHarness(t)
	p := NewDataProcessor(h.store, panickingAlerts{}, h.reserves, h.overrides, h.opts, nil)

	run, err := p.Run(context.Background(), models.RunTypeManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	stored, err := h.store.GetSyncRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
}
