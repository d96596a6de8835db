// Package contractsfinder adapts the Contracts Finder OCDS search feed.
//
// The feed paginates by page number and orders descending by publish date,
// so new notices always land on page 1. Exhaustion (an empty page, a
// non-JSON body, or an unparsable payload) is reported via Page.Exhausted
// rather than an error, because the upstream is known to swap its JSON
// response for an HTML login or maintenance page without warning. An
// exhausted sweep rewinds the stored page to 1 so the next cycle starts
// where new notices appear instead of re-polling the dead tail page.
package contractsfinder

import (
	"context"
	"fmt"
	"strings"

	collyfetcher "github.com/tkearney/tenderfeed/internal/fetcher/colly"
	"github.com/tkearney/tenderfeed/internal/normalize"
	"github.com/tkearney/tenderfeed/internal/ocds"
	"github.com/tkearney/tenderfeed/internal/tender"
)

// SourceID identifies this feed in fetch state and cycle stats.
const SourceID = "contracts-finder"

// DefaultBaseURL is the production OCDS search endpoint.
const DefaultBaseURL = "https://www.contractsfinder.service.gov.uk/Published/Notices/OCDS/Search"

// Source is the normalization profile for this feed.
var Source = normalize.Source{
	ID:        SourceID,
	Name:      "Contracts Finder",
	NoticeURL: "https://www.contractsfinder.service.gov.uk/Notice/%s",
}

// Config controls the adapter.
type Config struct {
	BaseURL  string
	PageSize int
}

type pageFetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Adapter fetches one page of notices per call.
type Adapter struct {
	fetcher pageFetcher
	cfg     Config
}

// New constructs an Adapter.
func New(fetcher pageFetcher, cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Adapter{fetcher: fetcher, cfg: cfg}
}

// SourceID implements tender.Adapter.
func (a *Adapter) SourceID() string {
	return SourceID
}

// FetchPage fetches the page named by state (1 when the state is fresh).
// Safe to call repeatedly with the same state: the same page is requested
// each time and Next is derived purely from the response.
func (a *Adapter) FetchPage(ctx context.Context, state tender.FetchState) (tender.Page, error) {
	page := state.Page
	if page < 1 {
		page = 1
	}
	next := tender.FetchState{SourceID: SourceID, Page: page}
	// Rewinds to the front page, where descending order puts new notices.
	rewound := tender.FetchState{SourceID: SourceID, Page: 1}

	url := fmt.Sprintf("%s?stages=tender&order=desc&pageSize=%d&page=%d", a.cfg.BaseURL, a.cfg.PageSize, page)
	resp, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		// Keep the page: a transient failure should resume where it was.
		return tender.Page{Next: next, Exhausted: true}, fmt.Errorf("contracts finder page %d: %w", page, err)
	}
	if !strings.Contains(resp.ContentType, "application/json") {
		return tender.Page{Next: rewound, Exhausted: true}, nil
	}

	records, ok := ocds.ExtractReleases(resp.Body)
	if !ok || len(records) == 0 {
		return tender.Page{Next: rewound, Exhausted: true}, nil
	}

	next.Page = page + 1
	raws := make([]tender.RawRecord, len(records))
	for i, r := range records {
		raws[i] = tender.RawRecord(r)
	}
	return tender.Page{Records: raws, Next: next}, nil
}
