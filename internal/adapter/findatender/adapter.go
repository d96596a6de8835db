// Package findatender adapts the Find a Tender OCDS release package feed.
//
// The feed paginates by opaque cursor: each response carries the token for
// the next batch, either as a top-level nextCursor or inside a links.next
// URL. An absent token means the feed is exhausted for now; the stored
// cursor resets so the next cycle starts a fresh sweep.
package findatender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	collyfetcher "github.com/tkearney/tenderfeed/internal/fetcher/colly"
	"github.com/tkearney/tenderfeed/internal/normalize"
	"github.com/tkearney/tenderfeed/internal/ocds"
	"github.com/tkearney/tenderfeed/internal/tender"
)

// SourceID identifies this feed in fetch state and cycle stats.
const SourceID = "find-a-tender"

// DefaultBaseURL is the production release package endpoint.
const DefaultBaseURL = "https://www.find-tender.service.gov.uk/api/1.0/ocdsReleasePackages"

// Source is the normalization profile for this feed.
var Source = normalize.Source{
	ID:        SourceID,
	Name:      "Find a Tender",
	NoticeURL: "https://www.find-tender.service.gov.uk/Notice/%s",
}

// Config controls the adapter.
type Config struct {
	BaseURL  string
	PageSize int
}

type pageFetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Adapter fetches one batch of notices per call.
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

// FetchPage fetches the batch named by state.Cursor (the first batch when
// the cursor is empty). Re-calling with the same state requests the same
// batch; the continuation token comes only from the response.
func (a *Adapter) FetchPage(ctx context.Context, state tender.FetchState) (tender.Page, error) {
	params := url.Values{}
	params.Set("stages", "tender")
	params.Set("limit", fmt.Sprintf("%d", a.cfg.PageSize))
	if state.Cursor != "" {
		params.Set("cursor", state.Cursor)
	}
	reqURL := a.cfg.BaseURL + "?" + params.Encode()

	// Exhausted resets the cursor so the next cycle sweeps from the start.
	exhausted := tender.FetchState{SourceID: SourceID}

	resp, err := a.fetcher.Fetch(ctx, reqURL)
	if err != nil {
		// Keep the cursor: a transient failure should resume where it was.
		return tender.Page{Next: tender.FetchState{SourceID: SourceID, Cursor: state.Cursor}, Exhausted: true},
			fmt.Errorf("find a tender batch: %w", err)
	}
	if !strings.Contains(resp.ContentType, "application/json") {
		return tender.Page{Next: exhausted, Exhausted: true}, nil
	}

	records, ok := ocds.ExtractReleases(resp.Body)
	if !ok || len(records) == 0 {
		return tender.Page{Next: exhausted, Exhausted: true}, nil
	}

	raws := make([]tender.RawRecord, len(records))
	for i, r := range records {
		raws[i] = tender.RawRecord(r)
	}

	next, found := nextCursor(resp.Body)
	if !found {
		return tender.Page{Records: raws, Next: exhausted, Exhausted: true}, nil
	}
	return tender.Page{Records: raws, Next: tender.FetchState{SourceID: SourceID, Cursor: next}}, nil
}

// nextCursor digs the continuation token out of the response body, trying
// the top-level nextCursor field first and then the links.next URL.
func nextCursor(body []byte) (string, bool) {
	var env struct {
		NextCursor string `json:"nextCursor"`
		Links      struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", false
	}
	if env.NextCursor != "" {
		return env.NextCursor, true
	}
	if env.Links.Next == "" {
		return "", false
	}
	parsed, err := url.Parse(env.Links.Next)
	if err != nil {
		return "", false
	}
	cursor := parsed.Query().Get("cursor")
	return cursor, cursor != ""
}
