package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tkearney/tenderfeed/internal/tender"
)

func TestDefaultTableSectors(t *testing.T) {
	t.Parallel()

	c := NewDefault()

	tests := []struct {
		name string
		opp  tender.Opportunity
		want tender.Sector
	}{
		{
			name: "runway is aviation",
			opp:  tender.Opportunity{Title: "Runway Resurfacing", Organisation: "Example Airport Ltd"},
			want: tender.SectorAviation,
		},
		{
			name: "buyer name alone can classify",
			opp:  tender.Opportunity{Title: "Asset Management Framework", Organisation: "Thames Water"},
			want: tender.SectorUtilities,
		},
		{
			name: "maritime keywords",
			opp:  tender.Opportunity{Title: "Quay Wall Repairs", Organisation: "Harbour Commissioners"},
			want: tender.SectorMaritime,
		},
		{
			name: "cpv code prefix without keywords",
			opp:  tender.Opportunity{Title: "Civils Package 4", Codes: []string{"45233139"}},
			want: tender.SectorHighways,
		},
		{
			name: "no rule matches",
			opp:  tender.Opportunity{Title: "Office Catering", Organisation: "Borough Council"},
			want: tender.SectorUnclassified,
		},
		{
			name: "exclusion beats sector keywords",
			opp:  tender.Opportunity{Title: "Catering services for airport staff", Organisation: "Example Airport Ltd"},
			want: tender.SectorUnclassified,
		},
		{
			name: "software excluded even with a sector keyword",
			opp:  tender.Opportunity{Title: "Rail asset software platform", Organisation: "Network Rail"},
			want: tender.SectorUnclassified,
		},
		{
			name: "licence in either spelling excluded",
			opp:  tender.Opportunity{Title: "Operating license renewal", Organisation: "Harbour Authority"},
			want: tender.SectorUnclassified,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, c.Classify(tc.opp))
		})
	}
}

func TestFirstMatchWinsInDeclarationOrder(t *testing.T) {
	t.Parallel()

	c := NewDefault()
	// "rail" (rule 1) and "airport" (rule 2) both match; declaration order
	// decides, so Rail must win.
	got := c.Classify(tender.Opportunity{Title: "Rail link to the airport terminal"})
	require.Equal(t, tender.SectorRail, got)
}

func TestCustomTableValidation(t *testing.T) {
	t.Parallel()

	_, err := New([]byte(`rules: []`))
	require.Error(t, err)

	_, err = New([]byte("rules:\n  - sector: Telecoms\n    keywords: [fibre]\n"))
	require.ErrorContains(t, err, "unknown sector")

	c, err := New([]byte("rules:\n  - sector: Rail\n    keywords: [tram]\n"))
	require.NoError(t, err)
	require.Equal(t, tender.SectorRail, c.Classify(tender.Opportunity{Title: "Tram extension"}))
}

func TestTagSetsSectorInPlace(t *testing.T) {
	t.Parallel()

	opps := NewDefault().Tag([]tender.Opportunity{
		{Title: "Runway Resurfacing"},
		{Title: "Office Catering"},
	})
	require.Equal(t, tender.SectorAviation, opps[0].Sector)
	require.Equal(t, tender.SectorUnclassified, opps[1].Sector)
}
