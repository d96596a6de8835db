// Package orchestrator runs the refresh pipeline: fetch every enabled feed,
// normalize, classify, merge, and persist the resulting snapshot.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tkearney/tenderfeed/internal/classify"
	iduuid "github.com/tkearney/tenderfeed/internal/id/uuid"
	"github.com/tkearney/tenderfeed/internal/merge"
	"github.com/tkearney/tenderfeed/internal/metrics"
	"github.com/tkearney/tenderfeed/internal/normalize"
	"github.com/tkearney/tenderfeed/internal/progress"
	"github.com/tkearney/tenderfeed/internal/tender"
)

// ErrCycleRunning is returned by RunCycle when another cycle holds the lock.
var ErrCycleRunning = errors.New("refresh cycle already running")

// SnapshotTopic is the event topic published after each successful cycle.
const SnapshotTopic = "snapshot-updated"

// Source pairs an adapter with its normalization profile and page ceiling.
// Sources are merged in declaration order; the first source wins when two
// feeds carry the same notice.
type Source struct {
	Adapter  tender.Adapter
	Profile  normalize.Source
	MaxPages int
}

// Config controls cycle execution.
type Config struct {
	// Budget bounds the wall-clock time of one cycle. Zero means no bound.
	Budget time.Duration
}

// Orchestrator coordinates refresh cycles. All methods are safe for
// concurrent use; at most one cycle runs at a time.
type Orchestrator struct {
	sources    []Source
	store      tender.SnapshotStore
	normalizer *normalize.Normalizer
	classifier *classify.Classifier
	merger     *merge.Merger
	publisher  tender.Publisher
	clock      tender.Clock
	cfg        Config
	emitter    progress.Emitter
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
}

// New constructs an Orchestrator.
func New(
	sources []Source,
	store tender.SnapshotStore,
	normalizer *normalize.Normalizer,
	classifier *classify.Classifier,
	merger *merge.Merger,
	publisher tender.Publisher,
	clock tender.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sources:    sources,
		store:      store,
		normalizer: normalizer,
		classifier: classifier,
		merger:     merger,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		emitter:    emitter,
		logger:     logger,
	}
}

// RunCycle executes one refresh cycle. It returns ErrCycleRunning without
// doing any work when a cycle is already in flight. A source that fails
// mid-fetch contributes what it collected so far; the cycle fails only when
// the merged snapshot cannot be persisted.
func (o *Orchestrator) RunCycle(ctx context.Context) (tender.CycleStats, error) {
	if !o.tryAcquire() {
		return tender.CycleStats{}, ErrCycleRunning
	}
	defer o.release()

	if o.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Budget)
		defer cancel()
	}

	cycleID := progress.UUIDToBytes(newCycleID())
	started := o.clock.Now()
	o.emit(progress.Event{CycleID: cycleID, TS: started, Stage: progress.StageCycleStart})

	stats, err := o.runLocked(ctx, cycleID, started)
	dur := o.clock.Now().Sub(started)
	stats.DurationMs = dur.Milliseconds()

	if err != nil {
		metrics.ObserveCycle("error")
		o.emit(progress.Event{
			CycleID: cycleID,
			TS:      o.clock.Now(),
			Stage:   progress.StageCycleError,
			Dur:     dur,
			Note:    err.Error(),
		})
		o.logger.Error("refresh cycle failed", zap.Error(err), zap.Duration("dur", dur))
		return stats, err
	}

	metrics.ObserveCycle("success")
	o.emit(progress.Event{
		CycleID: cycleID,
		TS:      o.clock.Now(),
		Stage:   progress.StageCycleDone,
		Records: int64(stats.FinalCount),
		Dur:     dur,
	})
	o.logger.Info("refresh cycle complete",
		zap.Int("final_count", stats.FinalCount),
		zap.Duration("dur", dur),
	)
	return stats, nil
}

// TriggerAsync starts a cycle in the background unless one is already
// running. Used by the read path to refresh a missing snapshot without
// blocking the caller.
func (o *Orchestrator) TriggerAsync() {
	go func() {
		if _, err := o.RunCycle(context.Background()); err != nil && !errors.Is(err, ErrCycleRunning) {
			o.logger.Warn("async refresh failed", zap.Error(err))
		}
	}()
}

// RunSchedule runs cycles on a fixed interval until ctx is done. Ticks that
// arrive while a cycle is still running are dropped.
func (o *Orchestrator) RunSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.RunCycle(ctx); err != nil {
				if errors.Is(err, ErrCycleRunning) {
					o.logger.Debug("scheduled refresh skipped, cycle in flight")
					continue
				}
				o.logger.Error("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}

// Running reports whether a cycle is currently in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) tryAcquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

var cycleIDs = iduuid.New()

// newCycleID returns a time-ordered UUID so cycle IDs sort by start time
// in sinks and logs.
func newCycleID() uuid.UUID {
	if id, err := cycleIDs.NewRawID(); err == nil {
		return id
	}
	return uuid.New()
}

type sourceResult struct {
	opportunities []tender.Opportunity
	state         tender.FetchState
	err           error
}

func (o *Orchestrator) runLocked(ctx context.Context, cycleID [16]byte, started time.Time) (stats tender.CycleStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh cycle panicked: %v", r)
		}
	}()

	results := make([]sourceResult, len(o.sources))
	var wg sync.WaitGroup
	for i, src := range o.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i] = o.fetchSource(ctx, cycleID, src, started)
		}(i, src)
	}
	wg.Wait()

	// The budget bounds fetching only; persisting what was collected must
	// survive a budget expiry.
	persistCtx := context.WithoutCancel(ctx)

	stats.PerSourceCounts = make(map[string]int, len(o.sources))
	lists := make([][]tender.Opportunity, 0, len(o.sources))
	collected := 0
	failed := 0
	for i, src := range o.sources {
		res := results[i]
		stats.PerSourceCounts[src.Adapter.SourceID()] = len(res.opportunities)
		lists = append(lists, o.classifier.Tag(res.opportunities))
		collected += len(res.opportunities)
		if res.err != nil {
			failed++
			o.logger.Warn("source fetch degraded",
				zap.String("source", src.Adapter.SourceID()),
				zap.Int("collected", len(res.opportunities)),
				zap.Error(res.err),
			)
		}
		o.persistState(persistCtx, res.state)
	}

	// Every source failing with nothing collected leaves the previous
	// snapshot authoritative rather than replacing it with an empty one.
	if failed > 0 && failed == len(o.sources) && collected == 0 {
		return stats, errors.New("all sources failed, snapshot unchanged")
	}

	// Fetch state resumes mid-feed, so one cycle's window is only a slice of
	// each feed. Notices collected by earlier cycles stay in the snapshot
	// until they expire: the previous snapshot joins the merge at lowest
	// priority, and the dedupe and deadline filters age it out.
	lists = append(lists, o.loadPrevious(persistCtx))

	merged := o.merger.Merge(started, lists...)
	updatedAt := o.clock.Now()
	snapshot := tender.Snapshot{UpdatedAt: &updatedAt, Items: merged}
	data, encErr := snapshot.Encode()
	if encErr != nil {
		return stats, fmt.Errorf("encode snapshot: %w", encErr)
	}
	if putErr := o.store.Put(persistCtx, tender.SnapshotKey, data); putErr != nil {
		return stats, fmt.Errorf("persist snapshot: %w", putErr)
	}

	stats.FinalCount = len(merged)
	stats.UpdatedAt = &updatedAt
	metrics.ObserveSnapshot(len(merged), updatedAt)
	o.publishUpdate(persistCtx, stats)
	return stats, nil
}

// fetchSource walks one feed page by page until it reports exhaustion, the
// page ceiling is hit, or the cycle budget expires. Errors end the walk but
// keep whatever was already collected.
func (o *Orchestrator) fetchSource(ctx context.Context, cycleID [16]byte, src Source, started time.Time) sourceResult {
	sourceID := src.Adapter.SourceID()
	o.emit(progress.Event{CycleID: cycleID, TS: o.clock.Now(), Stage: progress.StageSourceStart, Source: sourceID})

	state := o.loadState(ctx, sourceID)
	res := sourceResult{state: state}
	pages := 0

	for {
		if ctx.Err() != nil {
			res.err = fmt.Errorf("source %s: %w", sourceID, ctx.Err())
			break
		}
		if src.MaxPages > 0 && pages >= src.MaxPages {
			break
		}

		pageStart := o.clock.Now()
		page, err := src.Adapter.FetchPage(ctx, res.state)
		pages++
		res.state = page.Next

		if err != nil {
			metrics.ObservePage(sourceID, "error")
			res.err = err
			break
		}

		metrics.ObservePage(sourceID, "ok")
		metrics.ObserveRecords(sourceID, len(page.Records))
		for _, raw := range page.Records {
			res.opportunities = append(res.opportunities, o.normalizer.Record(raw, src.Profile, started))
		}
		o.emit(progress.Event{
			CycleID: cycleID,
			TS:      o.clock.Now(),
			Stage:   progress.StagePageDone,
			Source:  sourceID,
			Page:    pages,
			Records: int64(len(page.Records)),
			Dur:     o.clock.Now().Sub(pageStart),
		})

		if page.Exhausted {
			break
		}
	}

	res.state.SourceID = sourceID
	res.state.LastRunAt = o.clock.Now()
	o.emit(progress.Event{
		CycleID: cycleID,
		TS:      o.clock.Now(),
		Stage:   progress.StageSourceDone,
		Source:  sourceID,
		Records: int64(len(res.opportunities)),
	})
	return res
}

// loadPrevious returns the items of the last persisted snapshot so live
// notices from earlier fetch windows carry into this cycle's merge. A
// missing or undecodable snapshot carries nothing.
func (o *Orchestrator) loadPrevious(ctx context.Context) []tender.Opportunity {
	data, err := o.store.Get(ctx, tender.SnapshotKey)
	if err != nil {
		if !errors.Is(err, tender.ErrNotFound) {
			o.logger.Warn("previous snapshot read failed, merging fetched window only", zap.Error(err))
		}
		return nil
	}
	snap, err := tender.DecodeSnapshot(data)
	if err != nil {
		o.logger.Warn("previous snapshot corrupt, merging fetched window only", zap.Error(err))
		return nil
	}
	return snap.Items
}

// loadState reads a source's continuation state. Missing or undecodable
// state means "start from the beginning".
func (o *Orchestrator) loadState(ctx context.Context, sourceID string) tender.FetchState {
	data, err := o.store.Get(ctx, tender.FetchStateKey(sourceID))
	if err != nil {
		if !errors.Is(err, tender.ErrNotFound) {
			o.logger.Warn("fetch state read failed, starting fresh",
				zap.String("source", sourceID), zap.Error(err))
		}
		return tender.FetchState{SourceID: sourceID}
	}
	state, err := tender.DecodeFetchState(data)
	if err != nil {
		o.logger.Warn("fetch state corrupt, starting fresh",
			zap.String("source", sourceID), zap.Error(err))
		return tender.FetchState{SourceID: sourceID}
	}
	return state
}

// persistState writes continuation state even when the cycle fails, so a
// page that poisons one run does not poison the next.
func (o *Orchestrator) persistState(ctx context.Context, state tender.FetchState) {
	if state.SourceID == "" {
		return
	}
	data, err := tender.EncodeFetchState(state)
	if err != nil {
		o.logger.Warn("fetch state encode failed", zap.String("source", state.SourceID), zap.Error(err))
		return
	}
	if err := o.store.Put(ctx, tender.FetchStateKey(state.SourceID), data); err != nil {
		o.logger.Warn("fetch state persist failed", zap.String("source", state.SourceID), zap.Error(err))
	}
}

func (o *Orchestrator) publishUpdate(ctx context.Context, stats tender.CycleStats) {
	if o.publisher == nil {
		return
	}
	payload := map[string]any{
		"per_source_counts": stats.PerSourceCounts,
		"final_count":       stats.FinalCount,
		"updated_at":        stats.UpdatedAt.Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, SnapshotTopic, payload); err != nil {
		o.logger.Warn("snapshot update publish failed", zap.Error(err))
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}
