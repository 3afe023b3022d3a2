package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"preheat/internal/config"
	"preheat/internal/lhs"
	"preheat/internal/types"
)

// SlopeRepository provides data access for the slope_history and slope_cache
// tables. It implements types.SlopeStorage.
//
// Every write maintains two invariants in the same call: the history never
// holds entries older than the retention window or more than the configured
// cap, and slope_cache always holds the robust average of whatever history
// survived. Readers of the cached LHS therefore never recompute statistics.
type SlopeRepository struct {
	db    DBTX
	cfg   config.LHSConfig
	calc  *lhs.Calculator
	clock types.Clock
}

// NewSlopeRepository creates a SlopeRepository backed by the given database
// connection (pool or transaction).
func NewSlopeRepository(db DBTX, cfg config.LHSConfig, calc *lhs.Calculator, clock types.Clock) *SlopeRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &SlopeRepository{db: db, cfg: cfg, calc: calc, clock: clock}
}

// SaveSlopeData inserts one observation, prunes expired and over-cap entries,
// and refreshes the cached learned heating slope.
func (r *SlopeRepository) SaveSlopeData(ctx context.Context, deviceID string, data types.SlopeData) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO slope_history (device_id, slope_value, observed_at)
		 VALUES ($1, $2, $3)`,
		deviceID, data.SlopeValue, data.Timestamp,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert slope observation", err)
	}

	cutoff := r.clock.Now().AddDate(0, 0, -r.cfg.RetentionDays)
	_, err = r.db.Exec(ctx,
		`DELETE FROM slope_history WHERE device_id = $1 AND observed_at < $2`,
		deviceID, cutoff,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to prune expired slope history", err)
	}

	// Enforce the cap by dropping the oldest rows beyond it.
	_, err = r.db.Exec(ctx,
		`DELETE FROM slope_history
		 WHERE device_id = $1 AND observed_at < (
		   SELECT min(observed_at) FROM (
		     SELECT observed_at FROM slope_history
		     WHERE device_id = $1
		     ORDER BY observed_at DESC LIMIT $2
		   ) AS newest
		 )`,
		deviceID, r.cfg.MaxEntries,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to enforce slope history cap", err)
	}

	return r.refreshCache(ctx, deviceID)
}

// refreshCache recomputes the robust average over the surviving history and
// upserts it into slope_cache.
func (r *SlopeRepository) refreshCache(ctx context.Context, deviceID string) error {
	history, err := r.GetAllSlopeData(ctx, deviceID)
	if err != nil {
		return err
	}

	values := make([]float64, len(history))
	for i, e := range history {
		values[i] = e.SlopeValue
	}
	learned := r.calc.RobustAverage(values)

	_, err = r.db.Exec(ctx,
		`INSERT INTO slope_cache (device_id, learned_slope, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (device_id) DO UPDATE
		 SET learned_slope = EXCLUDED.learned_slope, updated_at = EXCLUDED.updated_at`,
		deviceID, learned, r.clock.Now(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update cached learned slope", err)
	}
	return nil
}

// GetAllSlopeData returns the device's full slope history, oldest first.
func (r *SlopeRepository) GetAllSlopeData(ctx context.Context, deviceID string) ([]types.SlopeData, error) {
	rows, err := r.db.Query(ctx,
		`SELECT slope_value, observed_at FROM slope_history
		 WHERE device_id = $1 ORDER BY observed_at ASC`,
		deviceID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query slope history", err)
	}
	defer rows.Close()

	return scanSlopeRows(rows)
}

// GetSlopesInTimeWindow returns observations with from <= observed_at < to,
// oldest first.
func (r *SlopeRepository) GetSlopesInTimeWindow(ctx context.Context, deviceID string, from, to time.Time) ([]types.SlopeData, error) {
	rows, err := r.db.Query(ctx,
		`SELECT slope_value, observed_at FROM slope_history
		 WHERE device_id = $1 AND observed_at >= $2 AND observed_at < $3
		 ORDER BY observed_at ASC`,
		deviceID, from, to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query slope window", err)
	}
	defer rows.Close()

	return scanSlopeRows(rows)
}

// GetLearnedHeatingSlope returns the cached robust average, or the configured
// default for a device with no cached value yet.
func (r *SlopeRepository) GetLearnedHeatingSlope(ctx context.Context, deviceID string) (float64, error) {
	var learned float64
	err := r.db.QueryRow(ctx,
		`SELECT learned_slope FROM slope_cache WHERE device_id = $1`,
		deviceID,
	).Scan(&learned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.cfg.DefaultSlope, nil
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read cached learned slope", err)
	}
	return learned, nil
}

// ClearSlopeHistory removes the device's history and its cached slope.
func (r *SlopeRepository) ClearSlopeHistory(ctx context.Context, deviceID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM slope_history WHERE device_id = $1`, deviceID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear slope history", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM slope_cache WHERE device_id = $1`, deviceID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear cached learned slope", err)
	}
	return nil
}

func scanSlopeRows(rows pgx.Rows) ([]types.SlopeData, error) {
	var out []types.SlopeData
	for rows.Next() {
		var entry types.SlopeData
		if err := rows.Scan(&entry.SlopeValue, &entry.Timestamp); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan slope row", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating slope rows", err)
	}
	return out, nil
}
