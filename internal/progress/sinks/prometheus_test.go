package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tkearney/tenderfeed/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	cycleID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{CycleID: cycleID, TS: time.Now(), Stage: progress.StageCycleStart},
		{
			CycleID: cycleID,
			TS:      time.Now().Add(2 * time.Second),
			Stage:   progress.StagePageDone,
			Source:  "contracts-finder",
			Page:    1,
			Records: 20,
			Dur:     200 * time.Millisecond,
		},
		{CycleID: cycleID, TS: time.Now().Add(15 * time.Second), Stage: progress.StageCycleDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesRunning))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.sourcePages.WithLabelValues("contracts-finder")), 1e-9)
	require.InDelta(t, 20.0, testutil.ToFloat64(sink.sourceRecords.WithLabelValues("contracts-finder")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.pageDuration, "tenderfeed_progress_page_duration_seconds"))
}

func TestPrometheusSinkErrorCycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	cycleID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{CycleID: cycleID, TS: time.Now(), Stage: progress.StageCycleStart},
		{CycleID: cycleID, TS: time.Now(), Stage: progress.StageCycleError, Note: "budget exceeded"},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesRunning))
}
