package tender

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the sole externally visible artifact: the atomically-replaced
// collection of current opportunities. UpdatedAt is nil only for the empty
// snapshot served before the first successful refresh.
type Snapshot struct {
	UpdatedAt *time.Time    `json:"updatedAt"`
	Items     []Opportunity `json:"items"`
}

// EmptySnapshot is what the read path serves when nothing has ever been
// written. Items is non-nil so the payload encodes as [] rather than null.
func EmptySnapshot() Snapshot {
	return Snapshot{Items: []Opportunity{}}
}

// Encode renders the snapshot as canonical JSON bytes for the store.
// Encoding is deterministic for identical inputs: struct field order is
// fixed and item order is fixed by the merger.
func (s Snapshot) Encode() ([]byte, error) {
	if s.Items == nil {
		s.Items = []Opportunity{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses stored snapshot bytes.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Items == nil {
		s.Items = []Opportunity{}
	}
	return s, nil
}

// EncodeFetchState renders one source's continuation state for the store.
func EncodeFetchState(st FetchState) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode fetch state: %w", err)
	}
	return data, nil
}

// DecodeFetchState parses stored continuation state.
func DecodeFetchState(data []byte) (FetchState, error) {
	var st FetchState
	if err := json.Unmarshal(data, &st); err != nil {
		return FetchState{}, fmt.Errorf("decode fetch state: %w", err)
	}
	return st, nil
}
