// Package ocds models the subset of the Open Contracting Data Standard
// release shape that the upstream feeds actually populate. Decoding is
// deliberately loose: both feeds drift between string and numeric money
// fields and between envelope layouts, and a malformed field must degrade
// to its zero value rather than fail the record.
package ocds

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Release is one provider-shaped notice record.
type Release struct {
	OCID      string  `json:"ocid"`
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Buyer     *Party  `json:"buyer"`
	BuyerName string  `json:"buyerName"`
	Parties   []Party `json:"parties"`
	Tender    Tender  `json:"tender"`
	// Some CF record envelopes put the tender period at the top level.
	TenderPeriod *Period `json:"tenderPeriod"`
}

// Party is a buyer/supplier entry in the release's parties array.
type Party struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Tender carries the notice body.
type Tender struct {
	Title             string           `json:"title"`
	Value             Value            `json:"value"`
	TenderPeriod      *Period          `json:"tenderPeriod"`
	EnquiryPeriod     *Period          `json:"enquiryPeriod"`
	DeliveryAddresses []Address        `json:"deliveryAddresses"`
	DeliveryLocations []Location       `json:"deliveryLocations"`
	Items             []Item           `json:"items"`
	Classification    *Classification  `json:"classification"`
	AdditionalCodes   []Classification `json:"additionalClassifications"`
}

// Value is a money range; Amount/Minimum/Maximum arrive as numbers or as
// formatted strings depending on the feed, hence the any typing.
type Value struct {
	Amount   any    `json:"amount"`
	Minimum  any    `json:"minimum"`
	Maximum  any    `json:"maximum"`
	Currency string `json:"currency"`
}

// Period is a date window; only EndDate is consumed.
type Period struct {
	EndDate string `json:"endDate"`
}

// Address is a delivery address with an optional region label.
type Address struct {
	Region string `json:"region"`
}

// Location is a delivery location with an optional NUTS code.
type Location struct {
	NUTS string `json:"nuts"`
}

// Item is a tender line item; consumed for delivery region and CPV codes.
type Item struct {
	DeliveryLocation *Address        `json:"deliveryLocation"`
	Classification   *Classification `json:"classification"`
}

// Classification is a structured scheme/code pair (typically CPV).
type Classification struct {
	Scheme string `json:"scheme"`
	ID     string `json:"id"`
}

// ParseRelease decodes a raw record. It never fails outright: undecodable
// payloads yield an empty Release, and the normalizer degrades the fields.
func ParseRelease(raw json.RawMessage) Release {
	var r Release
	_ = json.Unmarshal(raw, &r)
	return r
}

// Money coerces a provider money field to a float. Strings are cleaned of
// currency symbols, thousands separators, and whitespace first. Returns nil
// for anything that does not survive coercion; a bound is never fabricated.
func Money(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case '£', '$', '€', ',', ' ', ' ':
				return -1
			}
			return r
		}, strings.TrimSpace(n))
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
