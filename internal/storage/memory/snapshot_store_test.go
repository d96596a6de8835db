package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tkearney/tenderfeed/internal/tender"
)

func TestGetMissingKey(t *testing.T) {
	t.Parallel()

	s := NewSnapshotStore()
	_, err := s.Get(context.Background(), tender.SnapshotKey)
	require.ErrorIs(t, err, tender.ErrNotFound)
}

func TestPutThenGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSnapshotStore()
	require.NoError(t, s.Put(context.Background(), "latest", []byte(`{"items":[]}`)))

	got, err := s.Get(context.Background(), "latest")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"items":[]}`), got)
}

func TestPutReplacesWholeValue(t *testing.T) {
	t.Parallel()

	s := NewSnapshotStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "latest", []byte("first")))
	require.NoError(t, s.Put(ctx, "latest", []byte("second")))

	got, err := s.Get(ctx, "latest")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestConcurrentReadersOneWriter(t *testing.T) {
	t.Parallel()

	s := NewSnapshotStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "latest", []byte("v0")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				data, err := s.Get(ctx, "latest")
				require.NoError(t, err)
				require.NotEmpty(t, data)
			}
		}()
	}
	for j := 0; j < 100; j++ {
		require.NoError(t, s.Put(ctx, "latest", []byte("v1")))
	}
	wg.Wait()
}
