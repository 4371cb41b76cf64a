package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/parkalerts/apperrors"
	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/models"
)

func ptr[T any](v T) *T { return &v }

func testReserves() []models.Reserve {
	return []models.Reserve{
		{ObjectID: 42, Name: "Wollemi National Park"},
		{ObjectID: 10, Name: "Kosciuszko National Park"},
		{ObjectID: 11, Name: "Kosciuszko National Park"},
		{ObjectID: 20, Name: "Royal National Park"},
		{ObjectID: 30, Name: "Karst Conservation Reserve", Location: ptr("Abercrombie Caves")},
		{ObjectID: 31, Name: "Karst Conservation Reserve", Location: ptr("Wombeyan")},
		{ObjectID: 32, Name: "Karst Conservation Reserve", Location: ptr("Wombeyan Caves")},
		{ObjectID: 40, Name: "Murramarang Aboriginal Area"},
	}
}

func defaultOptions() Options {
	return Options{
		SuffixPatterns: config.DefaultSuffixPatterns,
		LocationRules:  config.DefaultLocationRules,
	}
}

func newMatcher(t *testing.T, overrides ...models.ParkOverride) *Matcher {
	t.Helper()
	m, err := New(testReserves(), overrides, defaultOptions())
	require.NoError(t, err)
	return m
}

func TestCanonical(t *testing.T) {
	tests := map[string]string{
		"Wollemi NP":                 "wollemi national park",
		"  WOLLEMI   national Park ": "wollemi national park",
		"Ben Boyd's N.P.":            "ben boyds national park",
		"Sea & Sky SCA":              "sea and sky state conservation area",
		"Murramarang AA":             "murramarang aboriginal area",
		"Jenolan KCR":                "jenolan karst conservation reserve",
		"NP Road Rest Area":          "np road rest area",
		"Hs Smith RP":                "hs smith regional park",
		"NP":                         "np",
		"":                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Canonical(in), "input %q", in)
	}
}

func TestResolve_Tiers(t *testing.T) {
	m := newMatcher(t)

	tests := []struct {
		name       string
		park       string
		wantID     int64
		wantSource models.MatchSource
	}{
		{"exact case-insensitive", "royal national park", 20, models.MatchSourceExact},
		{"abbreviated designation", "Wollemi NP", 42, models.MatchSourceExact},
		{"ties pick lowest object id", "Kosciuszko National Park", 10, models.MatchSourceExact},
		{"parenthetical qualifier", "Royal National Park (southern precinct)", 20, models.MatchSourceNormalized},
		{"dash area qualifier", "Kosciuszko NP - Thredbo Valley area", 10, models.MatchSourceNormalized},
		{"location equality", "Wombeyan Karst Conservation Reserve", 31, models.MatchSourceLocation},
		{"location containment", "Abercrombie Karst Conservation Reserve", 30, models.MatchSourceLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Resolve(Park{ID: "P", Name: tt.park})
			require.Equal(t, Matched, res.Outcome)
			assert.Equal(t, tt.wantID, res.ObjectID)
			assert.Equal(t, tt.wantSource, res.Source)
			assert.NotEmpty(t, res.ReserveName)
		})
	}
}

func TestResolve_Unmatched(t *testing.T) {
	m := newMatcher(t)

	for _, name := range []string{
		"Nowhere Regional Park",
		"Unknown Karst Conservation Reserve",
		"(zone only)",
	} {
		res := m.Resolve(Park{ID: "P", Name: name})
		assert.Equal(t, Unmatched, res.Outcome, name)
		_, ok := res.Mapping(Park{ID: "P", Name: name})
		assert.False(t, ok, "unmatched parks get no mapping row")
	}
}

func TestResolve_OverridePrecedence(t *testing.T) {
	m := newMatcher(t,
		models.ParkOverride{ParkID: "P1", ParkName: "Wollemi NP", ObjectID: ptr(int64(20))},
		models.ParkOverride{ParkID: "P2", ParkName: "Royal National Park"},
		models.ParkOverride{ParkID: "P3", ParkName: "Somewhere", ObjectID: ptr(int64(999)), ReserveName: "Not Yet Catalogued"},
	)

	res := m.Resolve(Park{ID: "P1", Name: "Wollemi NP"})
	assert.Equal(t, Matched, res.Outcome)
	assert.Equal(t, int64(20), res.ObjectID, "override beats the exact match on 42")
	assert.Equal(t, "Royal National Park", res.ReserveName)
	assert.Equal(t, models.MatchSourceOverride, res.Source)

	res = m.Resolve(Park{ID: "P2", Name: "Royal National Park"})
	assert.Equal(t, ExplicitlyUnmatched, res.Outcome, "empty override target stops the chain")
	mapping, ok := res.Mapping(Park{ID: "P2", Name: "Royal National Park"})
	require.True(t, ok)
	assert.Nil(t, mapping.ObjectID)
	assert.Equal(t, models.MatchSourceOverride, mapping.MatchSource)

	res = m.Resolve(Park{ID: "P3", Name: "Somewhere"})
	assert.Equal(t, Matched, res.Outcome)
	assert.Equal(t, int64(999), res.ObjectID, "override target is used verbatim")
	assert.Equal(t, "Not Yet Catalogued", res.ReserveName)
}

func TestOverrideMappings(t *testing.T) {
	m := newMatcher(t,
		models.ParkOverride{ParkID: "B", ParkName: "Blocked"},
		models.ParkOverride{ParkID: "A", ParkName: "Wollemi", ObjectID: ptr(int64(42))},
	)
	mappings := m.OverrideMappings()
	require.Len(t, mappings, 2)
	assert.Equal(t, "A", mappings[0].ParkID)
	require.NotNil(t, mappings[0].ObjectID)
	assert.Equal(t, int64(42), *mappings[0].ObjectID)
	assert.Equal(t, "Wollemi National Park", mappings[0].ReserveName)
	assert.Equal(t, "B", mappings[1].ParkID)
	assert.True(t, mappings[1].Unmatched())
}

func TestNew_InvalidPatterns(t *testing.T) {
	_, err := New(nil, nil, Options{SuffixPatterns: []string{"("}})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))

	_, err = New(nil, nil, Options{LocationRules: []config.LocationRule{{Pattern: "Reserve$", Placeholder: "X"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture group")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "explicitly-unmatched", ExplicitlyUnmatched.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
