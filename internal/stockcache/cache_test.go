package stockcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	snapshot map[int64]int64
	err      error
}

func (f *fakeLedger) Snapshot(context.Context) (map[int64]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]int64, len(f.snapshot))
	for id, qty := range f.snapshot {
		out[id] = qty
	}
	return out, nil
}

func TestReadBeforeRefreshReturnsZero(t *testing.T) {
	c := New(&fakeLedger{snapshot: map[int64]int64{1: 5}})
	assert.Equal(t, int64(0), c.Read(1))
	assert.True(t, c.RefreshedAt().IsZero())
}

func TestRefreshReplacesWholeSnapshot(t *testing.T) {
	ledger := &fakeLedger{snapshot: map[int64]int64{1: 5, 2: 3}}
	c := New(ledger)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int64(5), c.Read(1))
	assert.Equal(t, int64(3), c.Read(2))

	// Product 2 disappears from the ledger; the next refresh must not
	// leave its stale entry behind.
	ledger.snapshot = map[int64]int64{1: 4}
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int64(4), c.Read(1))
	assert.Equal(t, int64(0), c.Read(2))
}

func TestStalenessBetweenRefreshes(t *testing.T) {
	ledger := &fakeLedger{snapshot: map[int64]int64{1: 5}}
	c := New(ledger)
	require.NoError(t, c.Refresh(context.Background()))

	ledger.snapshot[1] = 0
	assert.Equal(t, int64(5), c.Read(1), "cache lags the ledger until refreshed")

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, int64(0), c.Read(1))
}

func TestRefreshFailureKeepsLastView(t *testing.T) {
	ledger := &fakeLedger{snapshot: map[int64]int64{1: 5}}
	c := New(ledger)
	require.NoError(t, c.Refresh(context.Background()))

	ledger.err = errors.New("ledger unreachable")
	assert.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, int64(5), c.Read(1))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := New(&fakeLedger{snapshot: map[int64]int64{1: 5, 2: 8}})
	require.NoError(t, c.Refresh(context.Background()))

	refreshedAt := c.RefreshedAt()
	snapshot := c.Snapshot()

	restored := New(&fakeLedger{})
	restored.Restore(snapshot, refreshedAt)
	assert.Equal(t, int64(5), restored.Read(1))
	assert.Equal(t, int64(8), restored.Read(2))
	assert.True(t, restored.RefreshedAt().Equal(refreshedAt))
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New(&fakeLedger{snapshot: map[int64]int64{1: 5}})
	require.NoError(t, c.Refresh(context.Background()))

	snapshot := c.Snapshot()
	snapshot[1] = 99
	assert.Equal(t, int64(5), c.Read(1))

	restored := New(&fakeLedger{})
	restored.Restore(snapshot, time.Now())
	snapshot[1] = 0
	assert.Equal(t, int64(99), restored.Read(1))
}
