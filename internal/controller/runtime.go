package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"preheat/internal/config"
	"preheat/internal/lhs"
	"preheat/internal/prediction"
	"preheat/internal/types"
)

// DecisionSink receives every decision the runtime produces. Matches the
// mqtt publisher contract but is defined locally so the runtime does not
// depend on the transport.
type DecisionSink interface {
	PublishDecision(deviceID string, decision types.HeatingDecision, at time.Time) error
}

// Runtime fans environment updates out to per-device controllers and re-runs
// every device on a periodic tick, so a stale environment still gets
// re-evaluated as its schedule slot approaches. Controllers are created
// lazily on the first update from a device.
type Runtime struct {
	cfg       config.ControllerConfig
	lhsCfg    config.LHSConfig
	scheduler types.SchedulerReader
	commander types.SchedulerCommander
	slopes    types.SlopeStorage
	calc      *lhs.Calculator
	predictor *prediction.Service
	sink      DecisionSink
	clock     types.Clock
	logger    *slog.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
	latest      map[string]types.EnvironmentState
}

// NewRuntime wires the controller fan-out.
func NewRuntime(
	cfg config.ControllerConfig,
	lhsCfg config.LHSConfig,
	scheduler types.SchedulerReader,
	commander types.SchedulerCommander,
	slopes types.SlopeStorage,
	calc *lhs.Calculator,
	predictor *prediction.Service,
	sink DecisionSink,
	clock types.Clock,
	logger *slog.Logger,
) *Runtime {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cfg:         cfg,
		lhsCfg:      lhsCfg,
		scheduler:   scheduler,
		commander:   commander,
		slopes:      slopes,
		calc:        calc,
		predictor:   predictor,
		sink:        sink,
		clock:       clock,
		logger:      logger,
		controllers: make(map[string]*Controller),
		latest:      make(map[string]types.EnvironmentState),
	}
}

// HandleEnvironment processes one inbound state update: it records the
// snapshot as the device's latest, runs a controller tick against it, and
// publishes the resulting decision.
func (rt *Runtime) HandleEnvironment(ctx context.Context, env types.EnvironmentState) {
	rt.mu.Lock()
	rt.latest[env.DeviceID] = env
	ctrl := rt.controllerFor(env.DeviceID)
	rt.mu.Unlock()

	rt.tick(ctx, ctrl, env)
}

// Run re-evaluates every known device on the configured interval until the
// context is cancelled. Event-driven ticks via HandleEnvironment continue
// independently; the periodic pass only covers devices whose sensors have
// gone quiet.
func (rt *Runtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(rt.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rt.tickAll(ctx)
		}
	}
}

// Devices returns the IDs of all devices seen so far.
func (rt *Runtime) Devices() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	ids := make([]string, 0, len(rt.controllers))
	for id := range rt.controllers {
		ids = append(ids, id)
	}
	return ids
}

func (rt *Runtime) tickAll(ctx context.Context) {
	rt.mu.Lock()
	snapshot := make(map[*Controller]types.EnvironmentState, len(rt.controllers))
	for id, ctrl := range rt.controllers {
		snapshot[ctrl] = rt.latest[id]
	}
	rt.mu.Unlock()

	for ctrl, env := range snapshot {
		rt.tick(ctx, ctrl, env)
	}
}

func (rt *Runtime) tick(ctx context.Context, ctrl *Controller, env types.EnvironmentState) {
	decision, err := ctrl.Recalculate(ctx, env)
	if err != nil {
		rt.logger.Error("controller tick failed",
			"device_id", env.DeviceID,
			"error", err,
		)
		return
	}

	rt.logger.Info("controller decision",
		"device_id", env.DeviceID,
		"action", decision.Action,
		"reason", decision.Reason,
	)

	if err := rt.sink.PublishDecision(env.DeviceID, decision, rt.clock.Now()); err != nil {
		rt.logger.Error("failed to publish decision",
			"device_id", env.DeviceID,
			"error", err,
		)
	}
}

// controllerFor returns the device's controller, creating it on first use.
// Callers must hold rt.mu.
func (rt *Runtime) controllerFor(deviceID string) *Controller {
	if ctrl, ok := rt.controllers[deviceID]; ok {
		return ctrl
	}
	ctrl := New(
		deviceID,
		rt.cfg,
		rt.lhsCfg,
		rt.scheduler,
		rt.commander,
		rt.slopes,
		rt.calc,
		rt.predictor,
		rt.clock,
		rt.logger.With("device_id", deviceID),
	)
	rt.controllers[deviceID] = ctrl
	return ctrl
}
