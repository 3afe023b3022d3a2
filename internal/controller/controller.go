// Package controller implements the stateful anticipation controller: the
// per-device decision loop that starts pre-heating early enough to hit a
// scheduled target temperature and reverts when estimates improve.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"preheat/internal/config"
	"preheat/internal/lhs"
	"preheat/internal/prediction"
	"preheat/internal/types"
)

// Controller drives pre-heating for exactly one device. Its activity phase
// is the only mutable state in the decision core; ticks are serialized by a
// per-device mutex because an overlapping tick could observe and flip the
// phase inconsistently.
//
// All heating start/stop is expressed through the scheduler's run/cancel
// actions, never through direct device commands, so cancelling always
// returns control to the externally configured schedule.
type Controller struct {
	deviceID  string
	cfg       config.ControllerConfig
	lhsCfg    config.LHSConfig
	scheduler types.SchedulerReader
	commander types.SchedulerCommander
	slopes    types.SlopeStorage
	calc      *lhs.Calculator
	predictor *prediction.Service
	clock     types.Clock
	logger    *slog.Logger

	mu         sync.Mutex
	phase      types.ControllerPhase
	activeSlot *types.ScheduleSlot
}

// New creates a Controller for one device.
func New(
	deviceID string,
	cfg config.ControllerConfig,
	lhsCfg config.LHSConfig,
	scheduler types.SchedulerReader,
	commander types.SchedulerCommander,
	slopes types.SlopeStorage,
	calc *lhs.Calculator,
	predictor *prediction.Service,
	clock types.Clock,
	logger *slog.Logger,
) *Controller {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		deviceID:  deviceID,
		cfg:       cfg,
		lhsCfg:    lhsCfg,
		scheduler: scheduler,
		commander: commander,
		slopes:    slopes,
		calc:      calc,
		predictor: predictor,
		clock:     clock,
		logger:    logger,
		phase:     types.PhaseNotPreheating,
	}
}

// Phase returns the current activity phase.
func (c *Controller) Phase() types.ControllerPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Recalculate runs one controller tick against the given environment
// snapshot. Invoked on every environment or scheduler change event and on
// the periodic timer; overlapping invocations for the same device block on
// the internal mutex.
func (c *Controller) Recalculate(ctx context.Context, env types.EnvironmentState) (types.HeatingDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	slot, err := c.scheduler.GetNextTimeslot(ctx, c.deviceID, now)
	if err != nil {
		return noAction("scheduler unavailable"), fmt.Errorf("fetch next timeslot: %w", err)
	}
	if slot == nil {
		return noAction("no upcoming schedule slot"), nil
	}
	if c.cfg.LookaheadHours > 0 && slot.TargetTime.Sub(now).Hours() > c.cfg.LookaheadHours {
		return noAction("next slot beyond lookahead horizon"), nil
	}

	if env.CurrentTemp >= slot.TargetTemp {
		return noAction("already at target temperature"), nil
	}

	slopeHistory, err := c.slopes.GetAllSlopeData(ctx, c.deviceID)
	if err != nil {
		return noAction("slope storage unavailable"), fmt.Errorf("fetch slope history: %w", err)
	}
	learnedSlope := c.calc.ContextualLHS(slopeHistory, slot.TargetTime, c.lhsCfg.WindowHours)

	pred := c.predictor.Predict(prediction.Request{
		CurrentTemp:   env.CurrentTemp,
		TargetTemp:    slot.TargetTemp,
		LearnedSlope:  learnedSlope,
		TargetTime:    slot.TargetTime,
		OutdoorTemp:   env.OutdoorTemp,
		Humidity:      env.Humidity,
		CloudCoverage: env.CloudCoverage,
	})
	if pred.ConfidenceLevel == 0 {
		// Invalid learned slope. Never trigger heating on zero confidence.
		return noAction("prediction confidence is zero"), nil
	}

	decision, err := c.decide(ctx, now, *slot, pred)
	if err != nil {
		return decision, err
	}

	// Overshoot guard runs only while pre-heating is active. A revert or
	// completion above already cleared the phase, so a cancelled tick is
	// never followed by a second command.
	if c.phase == types.PhasePreheatingActive {
		overshoot, oErr := c.checkOvershootRisk(ctx, now, *slot, env)
		if oErr != nil {
			return decision, oErr
		}
		if overshoot != nil {
			return *overshoot, nil
		}
	}

	return decision, nil
}

// decide applies the tick decision table for the upcoming slot.
func (c *Controller) decide(ctx context.Context, now time.Time, slot types.ScheduleSlot, pred types.PredictionResult) (types.HeatingDecision, error) {
	inStartWindow := !pred.AnticipatedStartTime.After(now) && now.Before(slot.TargetTime)

	switch {
	case inStartWindow:
		if c.phase == types.PhasePreheatingActive {
			return monitor("pre-heating in progress"), nil
		}
		if err := c.commander.RunAction(ctx, c.deviceID, slot); err != nil {
			return noAction("run action failed"), fmt.Errorf("run heating action: %w", err)
		}
		c.phase = types.PhasePreheatingActive
		c.activeSlot = &slot
		c.logger.InfoContext(ctx, "pre-heating started",
			"device_id", c.deviceID,
			"slot_id", slot.ID,
			"target_time", slot.TargetTime,
			"estimated_minutes", pred.EstimatedDurationMinutes,
		)
		return types.HeatingDecision{
			Action: types.ActionStartHeating,
			Reason: fmt.Sprintf("anticipated start reached, %.0f min to target", pred.EstimatedDurationMinutes),
		}, nil

	case c.phase == types.PhasePreheatingActive && pred.AnticipatedStartTime.After(now):
		// Estimate improved: less pre-heat needed. Revert through the
		// scheduler, exactly one cancel, no re-run this tick.
		if err := c.cancelActive(ctx); err != nil {
			return noAction("cancel action failed"), err
		}
		c.logger.InfoContext(ctx, "pre-heating reverted",
			"device_id", c.deviceID,
			"anticipated_start", pred.AnticipatedStartTime,
		)
		return types.HeatingDecision{
			Action: types.ActionStopHeating,
			Reason: "estimate improved, anticipated start moved past now",
		}, nil

	case !now.Before(slot.TargetTime):
		c.phase = types.PhaseNotPreheating
		c.activeSlot = nil
		return noAction("target time reached, pre-heating complete"), nil

	default:
		return monitor("waiting for anticipated start"), nil
	}
}

// checkOvershootRisk projects the temperature at target time from the
// current slope and cancels through the scheduler when the projection
// strictly exceeds target + margin. A projection exactly at the margin is
// not an overshoot.
func (c *Controller) checkOvershootRisk(ctx context.Context, now time.Time, slot types.ScheduleSlot, env types.EnvironmentState) (*types.HeatingDecision, error) {
	if env.CurrentSlope == nil {
		return nil, nil
	}

	hoursRemaining := slot.TargetTime.Sub(now).Hours()
	if hoursRemaining < 0 {
		return nil, nil
	}

	projected := env.CurrentTemp + *env.CurrentSlope*hoursRemaining
	if projected <= slot.TargetTemp+c.cfg.OvershootMargin {
		return nil, nil
	}

	if err := c.cancelActive(ctx); err != nil {
		d := noAction("cancel action failed")
		return &d, err
	}
	c.logger.WarnContext(ctx, "overshoot risk, pre-heating cancelled",
		"device_id", c.deviceID,
		"projected_temp", projected,
		"target_temp", slot.TargetTemp,
	)
	return &types.HeatingDecision{
		Action: types.ActionStopHeating,
		Reason: fmt.Sprintf("overshoot risk: projected %.1f exceeds target %.1f by more than %.1f", projected, slot.TargetTemp, c.cfg.OvershootMargin),
	}, nil
}

// cancelActive issues the scheduler cancel for the remembered slot and
// clears the activity state. State is cleared only after the cancel
// succeeds so a failed cancel can be retried on the next tick.
func (c *Controller) cancelActive(ctx context.Context) error {
	slotID := ""
	if c.activeSlot != nil {
		slotID = c.activeSlot.ID
	}
	if err := c.commander.CancelAction(ctx, c.deviceID, slotID); err != nil {
		return fmt.Errorf("cancel heating action: %w", err)
	}
	c.phase = types.PhaseNotPreheating
	c.activeSlot = nil
	return nil
}

func noAction(reason string) types.HeatingDecision {
	return types.HeatingDecision{Action: types.ActionNoAction, Reason: reason}
}

func monitor(reason string) types.HeatingDecision {
	return types.HeatingDecision{Action: types.ActionMonitor, Reason: reason}
}
