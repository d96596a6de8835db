// Package merge reconciles classified opportunities from all sources into
// the final snapshot contents. It is the single place where cross-source
// consistency is enforced, and it is fully deterministic: identical input
// lists always produce an identical, byte-stable item ordering.
package merge

import (
	"sort"
	"time"

	"github.com/tkearney/tenderfeed/internal/normalize"
	"github.com/tkearney/tenderfeed/internal/tender"
)

// Config tunes the merge filters.
type Config struct {
	// MinValue drops notices whose known value bounds all fall below this
	// threshold. Notices with no value information are kept. Zero disables
	// the gate.
	MinValue float64
}

// Merger combines, dedupes, filters, and orders opportunities.
type Merger struct {
	cfg Config
}

// New constructs a Merger.
func New(cfg Config) *Merger {
	return &Merger{cfg: cfg}
}

// Merge applies the pipeline's cross-source rules, in order:
//
//  1. Concatenate the per-source lists. Callers pass lists in source
//     priority order; when two feeds describe the same real-world notice
//     the first list's copy survives. The shipped priority is Contracts
//     Finder before Find a Tender.
//  2. Deduplicate on the normalized title|organisation|deadline key,
//     first occurrence wins.
//  3. Drop unclassified items.
//  4. Drop items whose deadline is strictly before now. A nil deadline
//     means unknown, and unknown is never treated as expired.
//  5. Sort ascending by deadline with nil deadlines last, ties broken by
//     ID so the order never depends on map iteration.
func (m *Merger) Merge(now time.Time, lists ...[]tender.Opportunity) []tender.Opportunity {
	seen := make(map[string]struct{})
	out := make([]tender.Opportunity, 0)

	for _, list := range lists {
		for _, opp := range list {
			key := normalize.IdentityKey(opp)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if opp.Sector == tender.SectorUnclassified {
				continue
			}
			if opp.Deadline != nil && opp.Deadline.Before(now) {
				continue
			}
			if m.belowValueGate(opp) {
				continue
			}
			out = append(out, opp)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

// belowValueGate reports whether the value gate rejects the opportunity.
// The gate keeps anything with an unknown value: under-filtering beats
// discarding a major notice whose feed omitted the value block.
func (m *Merger) belowValueGate(opp tender.Opportunity) bool {
	if m.cfg.MinValue <= 0 {
		return false
	}
	if opp.ValueLow == nil && opp.ValueHigh == nil {
		return false
	}
	if opp.ValueHigh != nil && *opp.ValueHigh >= m.cfg.MinValue {
		return false
	}
	if opp.ValueLow != nil && *opp.ValueLow >= m.cfg.MinValue {
		return false
	}
	return true
}

// less orders by deadline ascending with nil deadlines sorted last; a
// "deadline unknown" notice must never crowd out one closing soon.
func less(a, b tender.Opportunity) bool {
	switch {
	case a.Deadline == nil && b.Deadline == nil:
		return a.ID < b.ID
	case a.Deadline == nil:
		return false
	case b.Deadline == nil:
		return true
	case a.Deadline.Equal(*b.Deadline):
		return a.ID < b.ID
	default:
		return a.Deadline.Before(*b.Deadline)
	}
}
