package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkearney/tenderfeed/internal/progress"
)

// PrometheusSink exports refresh progress metrics via Prometheus. It owns all
// collectors for cycles started/completed/running and per-source page counters.
type PrometheusSink struct {
	cyclesStarted   prometheus.Counter
	cyclesCompleted *prometheus.CounterVec
	cyclesRunning   prometheus.Gauge
	cycleRuntime    *prometheus.HistogramVec

	sourcePages   *prometheus.CounterVec
	sourceRecords *prometheus.CounterVec
	pageDuration  *prometheus.HistogramVec

	tracker *cycleTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfeed_progress_cycles_started_total",
			Help: "Total refresh cycles that have started.",
		}),
		cyclesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderfeed_progress_cycles_completed_total",
			Help: "Total refresh cycles completed partitioned by result.",
		}, []string{"result"}),
		cyclesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenderfeed_progress_cycles_running",
			Help: "Current number of running refresh cycles.",
		}),
		cycleRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenderfeed_progress_cycle_runtime_seconds",
			Help:    "Wall time per completed refresh cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		sourcePages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderfeed_progress_source_pages_total",
			Help: "Page completions partitioned by source.",
		}, []string{"source"}),
		sourceRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderfeed_progress_source_records_total",
			Help: "Records collected per source.",
		}, []string{"source"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenderfeed_progress_page_duration_seconds",
			Help:    "Page fetch duration partitioned by source.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),
		tracker: newCycleTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.cyclesStarted,
		s.cyclesCompleted,
		s.cyclesRunning,
		s.cycleRuntime,
		s.sourcePages,
		s.sourceRecords,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCycleStart:
		s.cyclesStarted.Inc()
		if s.tracker.start(evt.CycleID) {
			s.cyclesRunning.Inc()
		}
	case progress.StageCycleDone:
		s.finishCycle(evt, "success")
	case progress.StageCycleError:
		s.finishCycle(evt, "error")
	case progress.StagePageDone:
		s.handlePageEvent(evt)
	}
}

func (s *PrometheusSink) finishCycle(evt progress.Event, result string) {
	s.cyclesCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.cycleRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.CycleID) {
		s.cyclesRunning.Dec()
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	source := evt.Source
	if source == "" {
		source = "unknown"
	}
	s.sourcePages.WithLabelValues(source).Inc()
	if evt.Records > 0 {
		s.sourceRecords.WithLabelValues(source).Add(float64(evt.Records))
	}
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(source).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type cycleTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newCycleTracker() *cycleTracker {
	return &cycleTracker{running: make(map[[16]byte]struct{})}
}

func (t *cycleTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *cycleTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
