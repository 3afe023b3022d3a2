package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"preheat/internal/types"
)

// ScheduleRepository provides data access for the schedule_slots and
// schedule_actions tables. It implements types.SchedulerReader and
// types.SchedulerCommander.
//
// Slots are written by the home-automation layer; this service only reads
// them. Run and cancel commands are appended to schedule_actions, which the
// automation layer consumes as its command queue. The append-only log keeps
// every start/revert auditable.
type ScheduleRepository struct {
	db    DBTX
	clock types.Clock
}

// NewScheduleRepository creates a ScheduleRepository backed by the given
// database connection (pool or transaction).
func NewScheduleRepository(db DBTX, clock types.Clock) *ScheduleRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &ScheduleRepository{db: db, clock: clock}
}

// GetNextTimeslot returns the earliest slot strictly after the given instant,
// or nil when nothing is scheduled. A nil slot is a normal outcome, not an
// error.
func (r *ScheduleRepository) GetNextTimeslot(ctx context.Context, deviceID string, after time.Time) (*types.ScheduleSlot, error) {
	var slot types.ScheduleSlot
	err := r.db.QueryRow(ctx,
		`SELECT id, target_time, target_temp FROM schedule_slots
		 WHERE device_id = $1 AND target_time > $2
		 ORDER BY target_time ASC LIMIT 1`,
		deviceID, after,
	).Scan(&slot.ID, &slot.TargetTime, &slot.TargetTemp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read next schedule slot", err)
	}
	return &slot, nil
}

// RunAction appends a "run" command for the slot.
func (r *ScheduleRepository) RunAction(ctx context.Context, deviceID string, slot types.ScheduleSlot) error {
	return r.appendAction(ctx, "run", deviceID, slot.ID)
}

// CancelAction appends a "cancel" command for the slot.
func (r *ScheduleRepository) CancelAction(ctx context.Context, deviceID string, slotID string) error {
	return r.appendAction(ctx, "cancel", deviceID, slotID)
}

func (r *ScheduleRepository) appendAction(ctx context.Context, kind, deviceID, slotID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO schedule_actions (id, kind, device_id, slot_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), kind, deviceID, slotID, r.clock.Now(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append schedule action", err)
	}
	return nil
}
