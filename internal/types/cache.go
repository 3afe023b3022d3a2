package types

import (
	"time"
)

// CycleCacheData is an immutable snapshot of the extracted heating cycles
// kept for a device, bounded by a retention window. Mutating operations
// return a new value; the receiver is never modified.
type CycleCacheData struct {
	DeviceID      string         `json:"device_id"`
	RetentionDays int            `json:"retention_days"`
	Cycles        []HeatingCycle `json:"cycles"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewCycleCacheData validates and creates an empty cache for a device.
func NewCycleCacheData(deviceID string, retentionDays int, now time.Time) (CycleCacheData, error) {
	if deviceID == "" {
		return CycleCacheData{}, NewAppError(
			ErrCodeValidationInvalidDevice,
			"cycle cache device id cannot be empty",
			nil,
		)
	}
	if retentionDays <= 0 {
		return CycleCacheData{}, NewAppErrorWithDetails(
			ErrCodeValidationInvalidRetention,
			"cycle cache retention must be positive",
			nil,
			map[string]any{"retention_days": retentionDays},
		)
	}
	if now.IsZero() {
		return CycleCacheData{}, NewAppError(
			ErrCodeValidationNaiveTimestamp,
			"cycle cache timestamp must be a concrete instant",
			nil,
		)
	}
	return CycleCacheData{
		DeviceID:      deviceID,
		RetentionDays: retentionDays,
		UpdatedAt:     now.UTC(),
	}, nil
}

type cycleKey struct {
	start    time.Time
	deviceID string
}

// WithCycles returns a copy with the given cycles appended. Cycles already
// present, identified by (start_time, device_id), are skipped so repeated
// extraction runs over overlapping windows stay idempotent.
func (c CycleCacheData) WithCycles(cycles []HeatingCycle, now time.Time) CycleCacheData {
	seen := make(map[cycleKey]struct{}, len(c.Cycles)+len(cycles))
	merged := make([]HeatingCycle, 0, len(c.Cycles)+len(cycles))
	for _, cycle := range c.Cycles {
		seen[cycleKey{cycle.StartTime.UTC(), cycle.DeviceID}] = struct{}{}
		merged = append(merged, cycle)
	}
	for _, cycle := range cycles {
		key := cycleKey{cycle.StartTime.UTC(), cycle.DeviceID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, cycle)
	}
	return CycleCacheData{
		DeviceID:      c.DeviceID,
		RetentionDays: c.RetentionDays,
		Cycles:        merged,
		UpdatedAt:     now.UTC(),
	}
}

// Pruned returns a copy with every cycle older than the retention window
// (relative to now) dropped.
func (c CycleCacheData) Pruned(now time.Time) CycleCacheData {
	cutoff := now.UTC().AddDate(0, 0, -c.RetentionDays)
	kept := make([]HeatingCycle, 0, len(c.Cycles))
	for _, cycle := range c.Cycles {
		if !cycle.StartTime.UTC().Before(cutoff) {
			kept = append(kept, cycle)
		}
	}
	return CycleCacheData{
		DeviceID:      c.DeviceID,
		RetentionDays: c.RetentionDays,
		Cycles:        kept,
		UpdatedAt:     now.UTC(),
	}
}

// CyclesSince returns the cycles starting at or after the given instant.
func (c CycleCacheData) CyclesSince(t time.Time) []HeatingCycle {
	out := make([]HeatingCycle, 0, len(c.Cycles))
	for _, cycle := range c.Cycles {
		if !cycle.StartTime.Before(t) {
			out = append(out, cycle)
		}
	}
	return out
}
