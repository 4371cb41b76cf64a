package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/parkalerts/models"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func int64Ptr(i int64) *int64 { return &i }

func TestUpsertReserves(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	n, err := store.UpsertReserves(ctx, []models.Reserve{
		{ObjectID: 42, Name: "Wollemi National Park", ReserveType: "NP", CentroidLat: floatPtr(-33.0), CentroidLon: floatPtr(150.5)},
		{ObjectID: 7, Name: "Karst Conservation Reserve", Location: strPtr("Abercrombie")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := store.GetReserve(ctx, 42)
	require.NoError(t, err)
	assert.True(t, first.HasCentroid())

	// Second pass replaces attributes, keeps one row per object_id.
	n, err = store.UpsertReserves(ctx, []models.Reserve{
		{ObjectID: 42, Name: "Wollemi National Park", ReserveType: "National Park"},
		{ObjectID: 42, Name: "Wollemi National Park", ReserveType: "National Park (dup)"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "duplicates collapse to one write")

	count, err := store.CountReserves(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, err := store.GetReserve(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "National Park (dup)", got.ReserveType)
	assert.Nil(t, got.CentroidLat, "upsert replaces wholesale")
	assert.Equal(t, first.CreatedAt.Unix(), got.CreatedAt.Unix(), "created_at survives updates")
}

func TestUpsertReserves_Empty(t *testing.T) {
	store := NewTestStore(t)
	n, err := store.UpsertReserves(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetReserve_NotFound(t *testing.T) {
	store := NewTestStore(t)
	_, err := store.GetReserve(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchAndListReserves(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()
	_, err := store.UpsertReserves(ctx, []models.Reserve{
		{ObjectID: 3, Name: "Blue Mountains National Park", ShortName: "Blue Mtns"},
		{ObjectID: 1, Name: "Royal National Park"},
		{ObjectID: 2, Name: "Dharug National Park"},
	})
	require.NoError(t, err)

	all, err := store.ListReserves(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].ObjectID, all[1].ObjectID, all[2].ObjectID})

	found, err := store.SearchReserves(ctx, "  ROYAL ", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(1), found[0].ObjectID)

	found, err = store.SearchReserves(ctx, "mtns", 10)
	require.NoError(t, err)
	require.Len(t, found, 1, "short name is searched too")

	found, err = store.SearchReserves(ctx, "national park", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2, "limit applies")
}
