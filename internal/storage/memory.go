// Package storage provides in-memory implementations of the persistence
// interfaces. They back local development and tests and define the
// reference semantics (retention, caps, cached LHS) that the database
// repositories mirror.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"preheat/internal/config"
	"preheat/internal/lhs"
	"preheat/internal/types"
)

// SlopeStore is an in-memory types.SlopeStorage. It enforces the retention
// window and the entry cap on every save and keeps a cached scalar LHS per
// device, recomputed whenever the history changes.
type SlopeStore struct {
	cfg   config.LHSConfig
	calc  *lhs.Calculator
	clock types.Clock

	mu     sync.RWMutex
	slopes map[string][]types.SlopeData
	cached map[string]float64
}

// NewSlopeStore creates an empty slope store.
func NewSlopeStore(cfg config.LHSConfig, calc *lhs.Calculator, clock types.Clock) *SlopeStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &SlopeStore{
		cfg:    cfg,
		calc:   calc,
		clock:  clock,
		slopes: make(map[string][]types.SlopeData),
		cached: make(map[string]float64),
	}
}

// SaveSlopeData appends one observation, prunes expired entries, enforces
// the cap by dropping the oldest, and refreshes the cached LHS.
func (s *SlopeStore) SaveSlopeData(_ context.Context, deviceID string, data types.SlopeData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.slopes[deviceID], data)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })

	cutoff := s.clock.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	kept := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) > s.cfg.MaxEntries {
		kept = kept[len(kept)-s.cfg.MaxEntries:]
	}

	s.slopes[deviceID] = append([]types.SlopeData(nil), kept...)

	values := make([]float64, len(kept))
	for i, e := range kept {
		values[i] = e.SlopeValue
	}
	s.cached[deviceID] = s.calc.RobustAverage(values)
	return nil
}

// GetAllSlopeData returns a copy of the device's slope history, oldest first.
func (s *SlopeStore) GetAllSlopeData(_ context.Context, deviceID string) ([]types.SlopeData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.SlopeData(nil), s.slopes[deviceID]...), nil
}

// GetSlopesInTimeWindow returns observations with from <= timestamp < to.
func (s *SlopeStore) GetSlopesInTimeWindow(_ context.Context, deviceID string, from, to time.Time) ([]types.SlopeData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.SlopeData
	for _, e := range s.slopes[deviceID] {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetLearnedHeatingSlope returns the cached robust average, or the neutral
// default for a device with no history.
func (s *SlopeStore) GetLearnedHeatingSlope(_ context.Context, deviceID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.cached[deviceID]; ok {
		return v, nil
	}
	return s.cfg.DefaultSlope, nil
}

// ClearSlopeHistory removes every observation and the cached LHS.
func (s *SlopeStore) ClearSlopeHistory(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slopes, deviceID)
	delete(s.cached, deviceID)
	return nil
}

// modelEntry pairs a serialized payload with its metadata.
type modelEntry struct {
	payload []byte
	meta    types.ModelMetadata
}

// ModelStore is an in-memory types.ModelStorage.
type ModelStore struct {
	mu     sync.RWMutex
	models map[string]modelEntry
}

// NewModelStore creates an empty model store.
func NewModelStore() *ModelStore {
	return &ModelStore{models: make(map[string]modelEntry)}
}

// SaveModel stores the payload and metadata, replacing any previous model
// (last writer wins).
func (s *ModelStore) SaveModel(_ context.Context, deviceID string, payload []byte, meta types.ModelMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[deviceID] = modelEntry{payload: append([]byte(nil), payload...), meta: meta}
	return nil
}

// LoadModel returns the stored payload and metadata.
func (s *ModelStore) LoadModel(_ context.Context, deviceID string) ([]byte, types.ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.models[deviceID]
	if !ok {
		return nil, types.ModelMetadata{}, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundModel,
			"no trained model for device",
			nil,
			map[string]any{"device_id": deviceID},
		)
	}
	return append([]byte(nil), entry.payload...), entry.meta, nil
}

// ModelExists reports whether a trained model is stored for the device.
func (s *ModelStore) ModelExists(_ context.Context, deviceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.models[deviceID]
	return ok, nil
}

// GetModelMetadata returns only the metadata.
func (s *ModelStore) GetModelMetadata(_ context.Context, deviceID string) (types.ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.models[deviceID]
	if !ok {
		return types.ModelMetadata{}, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundModel,
			"no trained model for device",
			nil,
			map[string]any{"device_id": deviceID},
		)
	}
	return entry.meta, nil
}

// CycleStore is an in-memory types.CycleStorage.
type CycleStore struct {
	retentionDays int
	clock         types.Clock

	mu     sync.RWMutex
	caches map[string]types.CycleCacheData
}

// NewCycleStore creates an empty cycle cache store.
func NewCycleStore(retentionDays int, clock types.Clock) *CycleStore {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &CycleStore{
		retentionDays: retentionDays,
		clock:         clock,
		caches:        make(map[string]types.CycleCacheData),
	}
}

// SaveCycleCache stores the cache snapshot for its device.
func (s *CycleStore) SaveCycleCache(_ context.Context, cache types.CycleCacheData) error {
	if cache.DeviceID == "" {
		return types.NewAppError(types.ErrCodeValidationInvalidDevice, "cycle cache device id cannot be empty", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[cache.DeviceID] = cache
	return nil
}

// LoadCycleCache returns the stored cache, or a fresh empty cache when the
// device has none yet.
func (s *CycleStore) LoadCycleCache(_ context.Context, deviceID string) (types.CycleCacheData, error) {
	s.mu.RLock()
	cache, ok := s.caches[deviceID]
	s.mu.RUnlock()

	if ok {
		return cache, nil
	}
	return types.NewCycleCacheData(deviceID, s.retentionDays, s.clock.Now())
}

// ScheduleAction records one run/cancel command issued to the scheduler.
type ScheduleAction struct {
	Kind     string // "run" or "cancel"
	DeviceID string
	SlotID   string
	At       time.Time
}

// Scheduler is an in-memory schedule that implements both SchedulerReader
// and SchedulerCommander, recording every issued action.
type Scheduler struct {
	clock types.Clock

	mu      sync.RWMutex
	slots   map[string][]types.ScheduleSlot
	actions []ScheduleAction
}

// NewScheduler creates an empty schedule.
func NewScheduler(clock types.Clock) *Scheduler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Scheduler{clock: clock, slots: make(map[string][]types.ScheduleSlot)}
}

// AddSlot registers an upcoming slot for a device.
func (s *Scheduler) AddSlot(deviceID string, slot types.ScheduleSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := append(s.slots[deviceID], slot)
	sort.Slice(slots, func(i, j int) bool { return slots[i].TargetTime.Before(slots[j].TargetTime) })
	s.slots[deviceID] = slots
}

// GetNextTimeslot returns the earliest slot strictly after the given
// instant, or nil when none is scheduled.
func (s *Scheduler) GetNextTimeslot(_ context.Context, deviceID string, after time.Time) (*types.ScheduleSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, slot := range s.slots[deviceID] {
		if slot.TargetTime.After(after) {
			found := slot
			return &found, nil
		}
	}
	return nil, nil
}

// RunAction records a run command.
func (s *Scheduler) RunAction(_ context.Context, deviceID string, slot types.ScheduleSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, ScheduleAction{Kind: "run", DeviceID: deviceID, SlotID: slot.ID, At: s.clock.Now()})
	return nil
}

// CancelAction records a cancel command.
func (s *Scheduler) CancelAction(_ context.Context, deviceID string, slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, ScheduleAction{Kind: "cancel", DeviceID: deviceID, SlotID: slotID, At: s.clock.Now()})
	return nil
}

// Actions returns a copy of the recorded command log.
func (s *Scheduler) Actions() []ScheduleAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ScheduleAction(nil), s.actions...)
}
