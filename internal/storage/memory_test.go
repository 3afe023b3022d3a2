package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preheat/internal/config"
	"preheat/internal/lhs"
	"preheat/internal/types"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func lhsConfig() config.LHSConfig {
	return config.LHSConfig{DefaultSlope: 2.0, WindowHours: 2.0, RetentionDays: 30, MaxEntries: 100}
}

func mustSlope(t *testing.T, value float64, ts time.Time) types.SlopeData {
	t.Helper()
	data, err := types.NewSlopeData(value, ts)
	require.NoError(t, err)
	return data
}

func TestSlopeStoreDefaultWhenEmpty(t *testing.T) {
	store := NewSlopeStore(lhsConfig(), lhs.NewCalculator(2.0), fakeClock{now: time.Now()})

	got, err := store.GetLearnedHeatingSlope(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestSlopeStoreCachedLHSTracksHistory(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	store := NewSlopeStore(lhsConfig(), lhs.NewCalculator(2.0), fakeClock{now: now})
	ctx := context.Background()

	require.NoError(t, store.SaveSlopeData(ctx, "dev", mustSlope(t, 1.5, now.Add(-2*time.Hour))))
	require.NoError(t, store.SaveSlopeData(ctx, "dev", mustSlope(t, 2.5, now.Add(-time.Hour))))

	// Two entries: robust average degrades to the plain mean.
	got, err := store.GetLearnedHeatingSlope(ctx, "dev")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)

	all, err := store.GetAllSlopeData(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Timestamp.Before(all[1].Timestamp), "history must stay sorted")
}

func TestSlopeStoreRetentionPruning(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	store := NewSlopeStore(lhsConfig(), lhs.NewCalculator(2.0), fakeClock{now: now})
	ctx := context.Background()

	require.NoError(t, store.SaveSlopeData(ctx, "dev", mustSlope(t, 9.0, now.AddDate(0, 0, -31))))
	require.NoError(t, store.SaveSlopeData(ctx, "dev", mustSlope(t, 2.0, now.Add(-time.Hour))))

	all, err := store.GetAllSlopeData(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, all, 1, "expired entry must be pruned on save")
	assert.Equal(t, 2.0, all[0].SlopeValue)
}

func TestSlopeStoreCapDropsOldest(t *testing.T) {
	cfg := lhsConfig()
	cfg.MaxEntries = 3
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	store := NewSlopeStore(cfg, lhs.NewCalculator(2.0), fakeClock{now: now})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i-5) * time.Hour)
		require.NoError(t, store.SaveSlopeData(ctx, "dev", mustSlope(t, float64(i+1), ts)))
	}

	all, err := store.GetAllSlopeData(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 3.0, all[0].SlopeValue, "oldest entries drop first")
	assert.Equal(t, 5.0, all[2].SlopeValue)
}

func TestSlopeStoreTimeWindow(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	store := NewSlopeStore(lhsConfig(), lhs.NewCalculator(2.0), fakeClock{now: now})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ts := now.Add(time.Duration(-i) * time.Hour)
		require.NoError(t, store.SaveSlopeData(ctx, "dev", mustSlope(t, 2.0, ts)))
	}

	from := now.Add(-2 * time.Hour)
	got, err := store.GetSlopesInTimeWindow(ctx, "dev", from, now)
	require.NoError(t, err)
	// from is inclusive, to is exclusive: entries at -2h and -1h.
	assert.Len(t, got, 2)
}

func TestSlopeStoreClear(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	store := NewSlopeStore(lhsConfig(), lhs.NewCalculator(2.0), fakeClock{now: now})
	ctx := context.Background()

	require.NoError(t, store.SaveSlopeData(ctx, "dev", mustSlope(t, 3.0, now)))
	require.NoError(t, store.ClearSlopeHistory(ctx, "dev"))

	all, err := store.GetAllSlopeData(ctx, "dev")
	require.NoError(t, err)
	assert.Empty(t, all)

	got, err := store.GetLearnedHeatingSlope(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got, "cleared device falls back to the default")
}

func TestModelStoreNotFound(t *testing.T) {
	store := NewModelStore()

	_, _, err := store.LoadModel(context.Background(), "dev")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundModel, appErr.Code)

	_, err = store.GetModelMetadata(context.Background(), "dev")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundModel, appErr.Code)

	exists, err := store.ModelExists(context.Background(), "dev")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestModelStoreRoundTrip(t *testing.T) {
	store := NewModelStore()
	ctx := context.Background()
	meta := types.ModelMetadata{DeviceID: "dev", Backend: types.BackendGBRT}

	require.NoError(t, store.SaveModel(ctx, "dev", []byte("payload"), meta))

	payload, got, err := store.LoadModel(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)
	assert.Equal(t, meta, got)

	exists, err := store.ModelExists(ctx, "dev")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCycleStoreFreshCacheForUnknownDevice(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	store := NewCycleStore(30, fakeClock{now: now})

	cache, err := store.LoadCycleCache(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", cache.DeviceID)
	assert.Equal(t, 30, cache.RetentionDays)
	assert.Empty(t, cache.Cycles)
}

func TestCycleStoreRejectsEmptyDevice(t *testing.T) {
	store := NewCycleStore(30, fakeClock{now: time.Now()})

	err := store.SaveCycleCache(context.Background(), types.CycleCacheData{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidDevice, appErr.Code)
}

func TestSchedulerNextSlotAndActions(t *testing.T) {
	now := time.Date(2024, 1, 31, 6, 0, 0, 0, time.UTC)
	sched := NewScheduler(fakeClock{now: now})
	ctx := context.Background()

	slotA := types.ScheduleSlot{ID: "a", TargetTime: now.Add(2 * time.Hour), TargetTemp: 21.0}
	slotB := types.ScheduleSlot{ID: "b", TargetTime: now.Add(time.Hour), TargetTemp: 20.0}
	sched.AddSlot("dev", slotA)
	sched.AddSlot("dev", slotB)

	next, err := sched.GetNextTimeslot(ctx, "dev", now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID, "earliest upcoming slot wins regardless of insertion order")

	// A slot exactly at `after` is not upcoming.
	next, err = sched.GetNextTimeslot(ctx, "dev", slotA.TargetTime)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, sched.RunAction(ctx, "dev", slotB))
	require.NoError(t, sched.CancelAction(ctx, "dev", slotB.ID))

	actions := sched.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, "run", actions[0].Kind)
	assert.Equal(t, "cancel", actions[1].Kind)
	assert.Equal(t, "b", actions[1].SlotID)
}
