package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCycleStart  Stage = "CYCLE_START"
	StageCycleDone   Stage = "CYCLE_DONE"
	StageCycleError  Stage = "CYCLE_ERROR"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceDone  Stage = "SOURCE_DONE"
	StagePageDone    Stage = "PAGE_DONE"
)

// Event captures a single milestone of a refresh cycle.
type Event struct {
	// CycleID uniquely identifies a refresh cycle using the 16-byte UUID form.
	CycleID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Source optionally scopes source and page events to a feed label.
	Source string
	// Page is the page number or batch ordinal for page completions.
	Page int
	// Records carries the record count delta for the milestone.
	Records int64
	// Dur captures execution latency for page and cycle completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CycleID == [16]byte{} {
		return errors.New("cycle id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone, StageCycleError:
	case StageSourceStart, StageSourceDone:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	case StagePageDone:
		if e.Source == "" {
			return errors.New("page done requires source")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// CycleUUID converts the binary cycle ID to uuid.UUID for consumers.
func (e Event) CycleUUID() uuid.UUID {
	return uuid.UUID(e.CycleID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
