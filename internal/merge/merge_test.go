package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tkearney/tenderfeed/internal/tender"
)

var mergeNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func opp(id, title, org string, deadline *time.Time, sector tender.Sector) tender.Opportunity {
	return tender.Opportunity{
		ID:           id,
		Title:        title,
		Organisation: org,
		Deadline:     deadline,
		Sector:       sector,
	}
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestMergeDeduplicatesAcrossSources(t *testing.T) {
	t.Parallel()

	deadline := at("2099-01-01T00:00:00Z")
	cf := []tender.Opportunity{
		opp("contracts-finder:1", "Runway Resurfacing", "Example Airport Ltd", deadline, tender.SectorAviation),
	}
	fts := []tender.Opportunity{
		opp("find-a-tender:9", "runway resurfacing ", " Example Airport Ltd", deadline, tender.SectorAviation),
	}

	got := New(Config{}).Merge(mergeNow, cf, fts)
	require.Len(t, got, 1)
	require.Equal(t, "contracts-finder:1", got[0].ID, "first source in priority order must survive")
}

func TestMergeDropsUnclassified(t *testing.T) {
	t.Parallel()

	got := New(Config{}).Merge(mergeNow, []tender.Opportunity{
		opp("a", "Office Catering", "Borough Council", nil, tender.SectorUnclassified),
		opp("b", "Runway Resurfacing", "Example Airport Ltd", nil, tender.SectorAviation),
	})
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)
}

func TestMergeDeadlineFiltering(t *testing.T) {
	t.Parallel()

	yesterday := mergeNow.Add(-24 * time.Hour)
	tomorrow := mergeNow.Add(24 * time.Hour)

	got := New(Config{}).Merge(mergeNow, []tender.Opportunity{
		opp("expired", "Track Renewal", "Network Rail", &yesterday, tender.SectorRail),
		opp("unknown", "Station Canopy", "Network Rail", nil, tender.SectorRail),
		opp("open", "Signalling Upgrade", "Network Rail", &tomorrow, tender.SectorRail),
	})

	require.Len(t, got, 2)
	require.Equal(t, "open", got[0].ID, "known deadline sorts before unknown")
	require.Equal(t, "unknown", got[1].ID, "nil deadline is retained and sorted last")
}

func TestMergeOrderingIsDeterministic(t *testing.T) {
	t.Parallel()

	early := mergeNow.Add(48 * time.Hour)
	late := mergeNow.Add(96 * time.Hour)
	input := []tender.Opportunity{
		opp("c", "C Works", "Org C", &late, tender.SectorHighways),
		opp("a", "A Works", "Org A", &early, tender.SectorHighways),
		opp("b", "B Works", "Org B", &early, tender.SectorHighways),
		opp("z", "Z Works", "Org Z", nil, tender.SectorHighways),
	}

	m := New(Config{})
	first := m.Merge(mergeNow, input)
	second := m.Merge(mergeNow, input)
	require.Equal(t, first, second)

	ids := make([]string, 0, len(first))
	for _, o := range first {
		ids = append(ids, o.ID)
	}
	require.Equal(t, []string{"a", "b", "c", "z"}, ids)
}

func TestMergeIsIdempotent(t *testing.T) {
	t.Parallel()

	deadline := mergeNow.Add(72 * time.Hour)
	input := []tender.Opportunity{
		opp("x", "Harbour Dredging", "Port Authority", &deadline, tender.SectorMaritime),
		opp("y", "Sewer Relining", "Anglian Water", nil, tender.SectorUtilities),
	}

	m := New(Config{})
	once := m.Merge(mergeNow, input)
	twice := m.Merge(mergeNow, once)
	require.Equal(t, once, twice, "re-merging merged output must not change content or order")
}

func TestMergeValueGate(t *testing.T) {
	t.Parallel()

	low := 50000.0
	high := 250000.0
	got := New(Config{MinValue: 100000}).Merge(mergeNow, []tender.Opportunity{
		{ID: "small", Title: "Gate Repairs", Sector: tender.SectorRail, ValueLow: &low, ValueHigh: &low},
		{ID: "large", Title: "Track Renewal", Sector: tender.SectorRail, ValueHigh: &high},
		{ID: "unknown", Title: "Bridge Deck", Sector: tender.SectorRail},
	})

	ids := make([]string, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	require.ElementsMatch(t, []string{"large", "unknown"}, ids, "unknown value is kept, sub-threshold dropped")
}
