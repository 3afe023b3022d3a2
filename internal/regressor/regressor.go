// Package regressor provides the backend-polymorphic regression models that
// map feature vectors to heating durations, plus their serialized form.
//
// Serialized payloads are zstd-compressed JSON envelopes that embed the
// producing backend's identifier, so deserialization can refuse payloads
// whose backend is not available in this build.
package regressor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"preheat/internal/types"
)

// envelope is the outer serialized form shared by every backend.
type envelope struct {
	Backend types.RegressorBackend `json:"backend"`
	Model   json.RawMessage        `json:"model"`
}

// New creates an untrained regressor for the requested backend.
func New(backend types.RegressorBackend) (types.Regressor, error) {
	switch backend {
	case types.BackendGBRT:
		return NewGBRT(DefaultGBRTParams()), nil
	case types.BackendLinear:
		return NewLinear(), nil
	default:
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConflictBackendUnavailable,
			"unknown regressor backend",
			nil,
			map[string]any{"backend": string(backend)},
		)
	}
}

// Deserialize reconstructs a trained regressor from a serialized payload.
// A payload produced by an unavailable backend is refused with a conflict
// error; undecodable payloads surface as corrupt-model errors.
func Deserialize(payload []byte) (types.Regressor, error) {
	raw, err := decompress(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalCorruptModel, "model payload is not valid zstd", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalCorruptModel, "model envelope is not valid JSON", err)
	}

	switch env.Backend {
	case types.BackendGBRT:
		var m gbrtModel
		if err := json.Unmarshal(env.Model, &m); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalCorruptModel, "gbrt model payload is corrupt", err)
		}
		return &GBRT{model: &m}, nil
	case types.BackendLinear:
		var m linearModel
		if err := json.Unmarshal(env.Model, &m); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalCorruptModel, "linear model payload is corrupt", err)
		}
		return &Linear{model: &m}, nil
	default:
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConflictBackendUnavailable,
			"serialized model requires an unavailable backend",
			nil,
			map[string]any{"backend": string(env.Backend)},
		)
	}
}

// seal wraps a backend-specific model in the envelope and compresses it.
func seal(backend types.RegressorBackend, model any) ([]byte, error) {
	inner, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	raw, err := json.Marshal(envelope{Backend: backend, Model: inner})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return compress(raw)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return nil, fmt.Errorf("compress model: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flush zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(payload, nil)
}

// validateTrainingInput checks the shared Fit preconditions.
func validateTrainingInput(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidFeatures,
			"training inputs and targets must be non-empty and aligned",
			nil,
			map[string]any{"rows": len(x), "targets": len(y)},
		)
	}
	width := len(x[0])
	if width == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidFeatures, "feature vectors cannot be empty", nil)
	}
	for i, row := range x {
		if len(row) != width {
			return types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidFeatures,
				"feature vectors have inconsistent widths",
				nil,
				map[string]any{"row": i, "width": len(row), "expected": width},
			)
		}
	}
	return nil
}

// trainingMetrics computes RMSE and MAE of predictions against targets.
func trainingMetrics(predict func([]float64) float64, x [][]float64, y []float64) types.TrainingMetrics {
	var sqSum, absSum float64
	for i, row := range x {
		diff := predict(row) - y[i]
		sqSum += diff * diff
		if diff < 0 {
			diff = -diff
		}
		absSum += diff
	}
	n := float64(len(x))
	return types.TrainingMetrics{
		RMSE:      math.Sqrt(sqSum / n),
		MAE:       absSum / n,
		NSamples:  len(x),
		NFeatures: len(x[0]),
	}
}
