package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallwayapps/browsergate/pkg/models"
)

func TestMemoryMissIsNotError(t *testing.T) {
	dir := NewMemory()

	rec, err := dir.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryPutUpsert(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:  "t1",
		Status: models.StatusInitializing,
	}))

	// Upsert fills in the backend id once launch completes
	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:            "t1",
		BackendSessionID: "bk-1",
		Status:           models.StatusRunning,
	}))

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "bk-1", rec.BackendSessionID)
	assert.Equal(t, models.StatusRunning, rec.Status)

	// A status-only upsert must not clear the backend id
	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:  "t1",
		Status: models.StatusRunning,
	}))
	rec, err = dir.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", rec.BackendSessionID)
}

func TestMemoryBackendIDImmutable(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:            "t1",
		BackendSessionID: "bk-1",
		Status:           models.StatusRunning,
	}))

	err := dir.Put(ctx, models.Session{
		TabID:            "t1",
		BackendSessionID: "bk-2",
		Status:           models.StatusRunning,
	})
	assert.ErrorIs(t, err, ErrBackendIDConflict)

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", rec.BackendSessionID)
}

func TestMemoryUpdateStatusAndDebugURL(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:            "t1",
		BackendSessionID: "bk-1",
		Status:           models.StatusRunning,
	}))

	require.NoError(t, dir.UpdateStatus(ctx, "t1", models.StatusClosed))
	require.NoError(t, dir.CacheDebugURL(ctx, "t1", "https://debug.example/bk-1"))

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, rec.Status)
	assert.Equal(t, "https://debug.example/bk-1", rec.DebugURL)

	// Updates against an absent tab are no-ops, not errors
	assert.NoError(t, dir.UpdateStatus(ctx, "ghost", models.StatusClosed))
	assert.NoError(t, dir.CacheDebugURL(ctx, "ghost", "x"))
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	require.NoError(t, dir.Put(ctx, models.Session{TabID: "t1", Status: models.StatusRunning}))
	require.NoError(t, dir.Delete(ctx, "t1"))
	require.NoError(t, dir.Delete(ctx, "t1"))

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryList(t *testing.T) {
	dir := NewMemory()
	ctx := context.Background()

	require.NoError(t, dir.Put(ctx, models.Session{TabID: "a", Status: models.StatusRunning}))
	require.NoError(t, dir.Put(ctx, models.Session{TabID: "b", Status: models.StatusClosed}))

	recs, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
