package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tkearney/tenderfeed/internal/hash/sha256"
	"github.com/tkearney/tenderfeed/internal/tender"
)

var testSource = Source{
	ID:        "contracts-finder",
	Name:      "Contracts Finder",
	NoticeURL: "https://www.contractsfinder.service.gov.uk/Notice/%s",
}

func newNormalizer() *Normalizer {
	return New(sha256.New())
}

func TestRecordFullRelease(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"ocid": "ocds-b5fd17-12345",
		"parties": [
			{"name": "Example Supplier", "roles": ["supplier"]},
			{"name": "Example Airport Ltd", "roles": ["buyer"]}
		],
		"tender": {
			"title": "Runway Resurfacing",
			"value": {"minimum": "£100,000", "maximum": 250000.5, "currency": "GBP"},
			"tenderPeriod": {"endDate": "2099-01-01T12:00:00Z"},
			"deliveryAddresses": [{"region": "North West"}],
			"classification": {"scheme": "CPV", "id": "45235210"}
		}
	}`)

	discovered := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	opp := newNormalizer().Record(raw, testSource, discovered)

	require.Equal(t, "contracts-finder:ocds-b5fd17-12345", opp.ID)
	require.Equal(t, "Contracts Finder", opp.Source)
	require.Equal(t, "Runway Resurfacing", opp.Title)
	require.Equal(t, "Example Airport Ltd", opp.Organisation)
	require.Equal(t, "North West", opp.Region)
	require.NotNil(t, opp.Deadline)
	require.Equal(t, time.Date(2099, 1, 1, 12, 0, 0, 0, time.UTC), *opp.Deadline)
	require.NotNil(t, opp.ValueLow)
	require.InDelta(t, 100000, *opp.ValueLow, 0.001)
	require.NotNil(t, opp.ValueHigh)
	require.InDelta(t, 250000.5, *opp.ValueHigh, 0.001)
	require.Equal(t, "https://www.contractsfinder.service.gov.uk/Notice/ocds-b5fd17-12345", opp.URL)
	require.Equal(t, []string{"45235210"}, opp.Codes)
	require.Equal(t, discovered, opp.DiscoveredAt)
}

func TestRecordBuyerPriorityOrder(t *testing.T) {
	t.Parallel()

	n := newNormalizer()
	now := time.Now().UTC()

	fromParties := n.Record(json.RawMessage(
		`{"buyer":{"name":"Top Level"},"parties":[{"name":"Party Buyer","roles":["buyer"]}]}`,
	), testSource, now)
	require.Equal(t, "Party Buyer", fromParties.Organisation)

	fromBuyer := n.Record(json.RawMessage(
		`{"buyer":{"name":"Top Level"},"buyerName":"Legacy"}`,
	), testSource, now)
	require.Equal(t, "Top Level", fromBuyer.Organisation)

	fromLegacy := n.Record(json.RawMessage(`{"buyerName":"Legacy"}`), testSource, now)
	require.Equal(t, "Legacy", fromLegacy.Organisation)
}

func TestRecordMalformedFieldsDegrade(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"id": "X-1",
		"tender": {
			"title": "Bridge Works",
			"value": {"minimum": "TBC", "maximum": true},
			"tenderPeriod": {"endDate": "soonish"}
		}
	}`)

	opp := newNormalizer().Record(raw, testSource, time.Now().UTC())
	require.Equal(t, "Bridge Works", opp.Title)
	require.Nil(t, opp.Deadline, "unparsable deadline must be unknown, not expired")
	require.Nil(t, opp.ValueLow)
	require.Nil(t, opp.ValueHigh)
}

func TestRecordCompositeIDWithoutNativeIdentifier(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"tender":{"title":"Depot Lighting"},"buyerName":"Metro"}`)
	n := newNormalizer()
	now := time.Now().UTC()

	first := n.Record(raw, testSource, now)
	second := n.Record(raw, testSource, now.Add(time.Hour))
	require.Equal(t, first.ID, second.ID, "composite ID must be deterministic")
	require.NotContains(t, first.ID, "|")
}

func TestParseDeadlineFormats(t *testing.T) {
	t.Parallel()

	midnight := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

	dateOnly := ParseDeadline("2099-01-01")
	require.NotNil(t, dateOnly)
	require.Equal(t, midnight, *dateOnly)

	rfc := ParseDeadline("2099-01-01T00:00:00Z")
	require.NotNil(t, rfc)
	require.Equal(t, midnight, *rfc, "date-only and RFC3339 midnight must normalize identically")

	zoneless := ParseDeadline("2099-01-01T00:00:00")
	require.NotNil(t, zoneless)
	require.Equal(t, midnight, *zoneless)

	require.Nil(t, ParseDeadline(""))
	require.Nil(t, ParseDeadline("next spring"))
}

func TestIdentityKeySameAcrossSources(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	a := tender.Opportunity{Title: "Runway Resurfacing ", Organisation: "Example Airport Ltd", Deadline: &deadline}
	b := tender.Opportunity{Title: "runway resurfacing", Organisation: " example airport ltd", Deadline: &deadline}
	require.Equal(t, IdentityKey(a), IdentityKey(b))
}

func TestPickValuesSingleBoundAndSwap(t *testing.T) {
	t.Parallel()

	n := newNormalizer()
	now := time.Now().UTC()

	onlyMax := n.Record(json.RawMessage(`{"id":"1","tender":{"value":{"maximum":5000}}}`), testSource, now)
	require.Nil(t, onlyMax.ValueLow, "missing bound must stay nil, not be fabricated")
	require.NotNil(t, onlyMax.ValueHigh)

	swapped := n.Record(json.RawMessage(`{"id":"2","tender":{"value":{"minimum":9000,"maximum":100}}}`), testSource, now)
	require.NotNil(t, swapped.ValueLow)
	require.NotNil(t, swapped.ValueHigh)
	require.LessOrEqual(t, *swapped.ValueLow, *swapped.ValueHigh)

	amountOnly := n.Record(json.RawMessage(`{"id":"3","tender":{"value":{"amount":750}}}`), testSource, now)
	require.NotNil(t, amountOnly.ValueLow)
	require.NotNil(t, amountOnly.ValueHigh)
	require.Equal(t, *amountOnly.ValueLow, *amountOnly.ValueHigh)
}
