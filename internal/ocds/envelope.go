package ocds

import "encoding/json"

// envelope covers every payload layout the feeds have been observed to
// return: a flat releases array, a records array wrapping compiledRelease,
// or a packages array of release packages.
type envelope struct {
	Releases []json.RawMessage `json:"releases"`
	Records  []struct {
		CompiledRelease json.RawMessage `json:"compiledRelease"`
	} `json:"records"`
	Packages []struct {
		Releases []json.RawMessage `json:"releases"`
	} `json:"packages"`
}

// ExtractReleases pulls raw release records out of a feed response body.
// ok is false when the body is not parseable JSON at all, which callers
// treat as pagination exhaustion (upstream drift returning an error page).
func ExtractReleases(body []byte) (records []json.RawMessage, ok bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	switch {
	case len(env.Releases) > 0:
		return env.Releases, true
	case len(env.Records) > 0:
		out := make([]json.RawMessage, 0, len(env.Records))
		for _, rec := range env.Records {
			if len(rec.CompiledRelease) > 0 {
				out = append(out, rec.CompiledRelease)
			}
		}
		return out, true
	case len(env.Packages) > 0:
		var out []json.RawMessage
		for _, pkg := range env.Packages {
			out = append(out, pkg.Releases...)
		}
		return out, true
	default:
		// Valid JSON with no recognizable records: an empty page.
		return nil, true
	}
}
