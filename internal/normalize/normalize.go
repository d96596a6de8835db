// Package normalize maps raw provider records into canonical opportunities.
//
// Normalization is a pure function with no I/O. Every field is extracted
// from a fixed priority order of candidate locations, and a malformed field
// degrades to its zero value rather than aborting the record.
package normalize

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tkearney/tenderfeed/internal/ocds"
	"github.com/tkearney/tenderfeed/internal/tender"
)

// Source describes how one feed's records turn into opportunities.
type Source struct {
	// ID is the stable source identifier, e.g. "contracts-finder".
	ID string
	// Name is the outward label stamped on opportunities.
	Name string
	// NoticeURL renders the public notice page for a provider notice ID.
	// Empty means fall back to any provider-supplied URL.
	NoticeURL string
}

// Normalizer turns raw records into canonical opportunities.
type Normalizer struct {
	hasher tender.Hasher
}

// New constructs a Normalizer. The hasher derives composite IDs for records
// without a provider-native identifier.
func New(hasher tender.Hasher) *Normalizer {
	return &Normalizer{hasher: hasher}
}

// Record maps one raw provider record to an Opportunity. It never fails:
// unusable deadlines and values come back nil, missing text fields empty.
func (n *Normalizer) Record(raw tender.RawRecord, src Source, discoveredAt time.Time) tender.Opportunity {
	r := ocds.ParseRelease(raw)

	opp := tender.Opportunity{
		Source:       src.Name,
		Title:        pickTitle(r),
		Organisation: pickBuyer(r),
		Region:       pickRegion(r),
		Deadline:     ParseDeadline(pickDeadline(r)),
		URL:          noticeURL(r, src),
		Codes:        pickCodes(r),
		DiscoveredAt: discoveredAt,
	}
	opp.ValueLow, opp.ValueHigh = pickValues(r)
	opp.ID = n.deriveID(r, src, opp)
	return opp
}

// IdentityKey is the cross-source dedup key: title, organisation, and
// normalized deadline, lower-cased and trimmed.
func IdentityKey(o tender.Opportunity) string {
	deadline := ""
	if o.Deadline != nil {
		deadline = o.Deadline.UTC().Format(time.RFC3339)
	}
	return strings.ToLower(strings.TrimSpace(o.Title)) + "|" +
		strings.ToLower(strings.TrimSpace(o.Organisation)) + "|" +
		deadline
}

func (n *Normalizer) deriveID(r ocds.Release, src Source, opp tender.Opportunity) string {
	if native := firstNonEmpty(r.OCID, r.ID); native != "" {
		return src.ID + ":" + native
	}
	digest, err := n.hasher.Hash([]byte(IdentityKey(opp)))
	if err != nil {
		// SHA-256 over a byte slice cannot fail; keep the record anyway.
		return src.ID + ":" + IdentityKey(opp)
	}
	return src.ID + ":" + digest
}

// deadlineLayouts are tried in order. Date-only values normalize to
// midnight UTC so "2099-01-01" and "2099-01-01T00:00:00Z" are the same
// instant regardless of which feed supplied them.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDeadline coerces a provider date string to a UTC instant, or nil
// when the string is empty or unparsable. Unknown is never expired.
func ParseDeadline(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func pickTitle(r ocds.Release) string {
	return strings.TrimSpace(firstNonEmpty(r.Tender.Title, r.Title))
}

// pickBuyer resolves the organisation: a party with the "buyer" role wins,
// then the top-level buyer object, then the legacy buyerName field.
func pickBuyer(r ocds.Release) string {
	for _, p := range r.Parties {
		for _, role := range p.Roles {
			if role == "buyer" && p.Name != "" {
				return strings.TrimSpace(p.Name)
			}
		}
	}
	if r.Buyer != nil && r.Buyer.Name != "" {
		return strings.TrimSpace(r.Buyer.Name)
	}
	return strings.TrimSpace(r.BuyerName)
}

func pickDeadline(r ocds.Release) string {
	if r.Tender.TenderPeriod != nil && r.Tender.TenderPeriod.EndDate != "" {
		return r.Tender.TenderPeriod.EndDate
	}
	if r.Tender.EnquiryPeriod != nil && r.Tender.EnquiryPeriod.EndDate != "" {
		return r.Tender.EnquiryPeriod.EndDate
	}
	if r.TenderPeriod != nil {
		return r.TenderPeriod.EndDate
	}
	return ""
}

func pickRegion(r ocds.Release) string {
	if len(r.Tender.DeliveryAddresses) > 0 && r.Tender.DeliveryAddresses[0].Region != "" {
		return r.Tender.DeliveryAddresses[0].Region
	}
	if len(r.Tender.DeliveryLocations) > 0 && r.Tender.DeliveryLocations[0].NUTS != "" {
		return r.Tender.DeliveryLocations[0].NUTS
	}
	if len(r.Tender.Items) > 0 && r.Tender.Items[0].DeliveryLocation != nil {
		return r.Tender.Items[0].DeliveryLocation.Region
	}
	return ""
}

// pickValues extracts the value range. A feed supplying only amount uses it
// for both bounds; a single present bound leaves the other nil. Swapped
// bounds are corrected so ValueLow <= ValueHigh always holds.
func pickValues(r ocds.Release) (low, high *float64) {
	v := r.Tender.Value
	low = ocds.Money(v.Minimum)
	high = ocds.Money(v.Maximum)
	if amount := ocds.Money(v.Amount); amount != nil {
		if low == nil {
			low = amount
		}
		if high == nil {
			high = amount
		}
	}
	if low != nil && high != nil && *low > *high {
		low, high = high, low
	}
	return low, high
}

func pickCodes(r ocds.Release) []string {
	var codes []string
	appendCode := func(c *ocds.Classification) {
		if c != nil && c.ID != "" {
			codes = append(codes, c.ID)
		}
	}
	appendCode(r.Tender.Classification)
	for i := range r.Tender.AdditionalCodes {
		appendCode(&r.Tender.AdditionalCodes[i])
	}
	for _, item := range r.Tender.Items {
		appendCode(item.Classification)
	}
	return codes
}

// noticeURL builds the outward link from a stable notice identifier when
// one exists, else falls back to the provider URL, else stays empty.
func noticeURL(r ocds.Release, src Source) string {
	id := firstNonEmpty(r.OCID, r.ID)
	if id != "" && src.NoticeURL != "" {
		return fmt.Sprintf(src.NoticeURL, url.PathEscape(id))
	}
	return r.URL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
