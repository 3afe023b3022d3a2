package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"preheat/internal/types"
)

// CycleRepository provides data access for the cycle_cache table. It
// implements types.CycleStorage. The cycle list is stored as a JSONB
// document per device; merge, dedup, and pruning semantics live in
// types.CycleCacheData, not in SQL.
type CycleRepository struct {
	db            DBTX
	retentionDays int
	clock         types.Clock
}

// NewCycleRepository creates a CycleRepository backed by the given database
// connection (pool or transaction).
func NewCycleRepository(db DBTX, retentionDays int, clock types.Clock) *CycleRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &CycleRepository{db: db, retentionDays: retentionDays, clock: clock}
}

// SaveCycleCache upserts the device's cache snapshot.
func (r *CycleRepository) SaveCycleCache(ctx context.Context, cache types.CycleCacheData) error {
	if cache.DeviceID == "" {
		return types.NewAppError(types.ErrCodeValidationInvalidDevice, "cycle cache device id cannot be empty", nil)
	}

	cyclesJSON, err := json.Marshal(cache.Cycles)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode cycle cache", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO cycle_cache (device_id, retention_days, cycles, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (device_id) DO UPDATE
		 SET retention_days = EXCLUDED.retention_days, cycles = EXCLUDED.cycles, updated_at = EXCLUDED.updated_at`,
		cache.DeviceID, cache.RetentionDays, cyclesJSON, cache.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save cycle cache", err)
	}
	return nil
}

// LoadCycleCache returns the stored cache, or a fresh empty cache when the
// device has none yet.
func (r *CycleRepository) LoadCycleCache(ctx context.Context, deviceID string) (types.CycleCacheData, error) {
	var (
		cache      types.CycleCacheData
		cyclesJSON []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT device_id, retention_days, cycles, updated_at FROM cycle_cache WHERE device_id = $1`,
		deviceID,
	).Scan(&cache.DeviceID, &cache.RetentionDays, &cyclesJSON, &cache.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewCycleCacheData(deviceID, r.retentionDays, r.clock.Now())
		}
		return types.CycleCacheData{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load cycle cache", err)
	}

	if err := json.Unmarshal(cyclesJSON, &cache.Cycles); err != nil {
		return types.CycleCacheData{}, types.NewAppError(types.ErrCodeInternalDB, "failed to decode cycle cache", err)
	}
	return cache, nil
}
