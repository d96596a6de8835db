package ocds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMoneyCoercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want *float64
	}{
		{name: "nil", in: nil, want: nil},
		{name: "float", in: float64(125000), want: f(125000)},
		{name: "plain string", in: "125000", want: f(125000)},
		{name: "gbp string with separators", in: "£1,250,000.50", want: f(1250000.50)},
		{name: "euro string", in: "€ 90 000", want: f(90000)},
		{name: "garbage string", in: "TBC", want: nil},
		{name: "empty string", in: "", want: nil},
		{name: "bool", in: true, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Money(tc.in)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.InDelta(t, *tc.want, *got, 0.001)
		})
	}
}

func f(v float64) *float64 { return &v }

func TestParseReleaseDegradesOnMalformedPayload(t *testing.T) {
	t.Parallel()

	r := ParseRelease(json.RawMessage(`{"tender": "not an object"`))
	require.Empty(t, r.OCID)
	require.Empty(t, r.Tender.Title)
}

func TestExtractReleasesEnvelopes(t *testing.T) {
	t.Parallel()

	releases := []byte(`{"releases":[{"ocid":"a"},{"ocid":"b"}]}`)
	records, ok := ExtractReleases(releases)
	require.True(t, ok)
	require.Len(t, records, 2)

	compiled := []byte(`{"records":[{"compiledRelease":{"ocid":"a"}},{}]}`)
	records, ok = ExtractReleases(compiled)
	require.True(t, ok)
	require.Len(t, records, 1)

	packages := []byte(`{"packages":[{"releases":[{"ocid":"a"}]},{"releases":[{"ocid":"b"}]}]}`)
	records, ok = ExtractReleases(packages)
	require.True(t, ok)
	require.Len(t, records, 2)

	empty := []byte(`{"somethingElse":true}`)
	records, ok = ExtractReleases(empty)
	require.True(t, ok)
	require.Empty(t, records)

	htmlErrorPage, ok := ExtractReleases([]byte(`<html>maintenance</html>`))
	require.False(t, ok)
	require.Nil(t, htmlErrorPage)
}
