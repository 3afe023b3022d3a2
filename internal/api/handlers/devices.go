// Package handlers contains the HTTP handler implementations for the
// pre-heating API. It covers:
//   - Training runs (POST /v1/devices/{deviceID}/train)
//   - Predictions (POST /v1/devices/{deviceID}/predict)
//   - Model metadata (GET /v1/devices/{deviceID}/model)
//   - Slope history (GET/POST/DELETE /v1/devices/{deviceID}/slopes)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"preheat/internal/config"
	"preheat/internal/core"
	"preheat/internal/lhs"
	"preheat/internal/prediction"
	"preheat/internal/types"
)

// Trainer runs one end-to-end training pass for a device. Matches the
// training.Orchestrator contract but is defined locally to avoid tight
// coupling per the handler injection pattern.
type Trainer interface {
	Train(ctx context.Context, deviceID string) (types.TrainingReport, error)
}

// DeviceHandler maps HTTP requests onto the per-device training, prediction,
// and slope-history operations.
type DeviceHandler struct {
	trainer    Trainer
	predictor  *prediction.Service
	calculator *lhs.Calculator
	slopes     types.SlopeStorage
	models     types.ModelStorage
	lhsCfg     config.LHSConfig
	validator  *core.Validator
	clock      types.Clock
	logger     *slog.Logger
}

// NewDeviceHandler creates a DeviceHandler with the provided dependencies.
func NewDeviceHandler(
	trainer Trainer,
	predictor *prediction.Service,
	calculator *lhs.Calculator,
	slopes types.SlopeStorage,
	models types.ModelStorage,
	lhsCfg config.LHSConfig,
	validator *core.Validator,
	clock types.Clock,
	logger *slog.Logger,
) *DeviceHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceHandler{
		trainer:    trainer,
		predictor:  predictor,
		calculator: calculator,
		slopes:     slopes,
		models:     models,
		lhsCfg:     lhsCfg,
		validator:  validator,
		clock:      clock,
		logger:     logger,
	}
}

// RegisterRoutes mounts the device endpoints onto the mux.
func (h *DeviceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/devices/{deviceID}", func(r chi.Router) {
		r.Post("/train", h.HandleTrain)
		r.Post("/predict", h.HandlePredict)
		r.Get("/model", h.HandleGetModel)
		r.Get("/slopes", h.HandleListSlopes)
		r.Post("/slopes", h.HandleRecordSlope)
		r.Delete("/slopes", h.HandleClearSlopes)
	})
}

// HandleGetModel handles GET /v1/devices/{deviceID}/model.
// Returns the trained model's metadata, or 404 when no model exists.
func (h *DeviceHandler) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	meta, err := h.models.GetModelMetadata(r.Context(), deviceID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: meta})
}

// slopeHistoryResponse is the payload of GET /slopes.
type slopeHistoryResponse struct {
	DeviceID            string            `json:"device_id"`
	LearnedHeatingSlope float64           `json:"learned_heating_slope"`
	Count               int               `json:"count"`
	Slopes              []types.SlopeData `json:"slopes"`
}

// HandleListSlopes handles GET /v1/devices/{deviceID}/slopes.
// Optional from/to query parameters (RFC3339) narrow the history to a
// half-open [from, to) window.
func (h *DeviceHandler) HandleListSlopes(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	q := r.URL.Query()

	var (
		slopes []types.SlopeData
		err    error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, perr := parseWindow(q.Get("from"), q.Get("to"))
		if perr != nil {
			core.Error(w, r, perr)
			return
		}
		slopes, err = h.slopes.GetSlopesInTimeWindow(r.Context(), deviceID, from, to)
	} else {
		slopes, err = h.slopes.GetAllSlopeData(r.Context(), deviceID)
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}

	learned, err := h.slopes.GetLearnedHeatingSlope(r.Context(), deviceID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: slopeHistoryResponse{
		DeviceID:            deviceID,
		LearnedHeatingSlope: learned,
		Count:               len(slopes),
		Slopes:              slopes,
	}})
}

// recordSlopeRequest is the payload of POST /slopes. Timestamp defaults to
// the current time when omitted.
type recordSlopeRequest struct {
	Slope     float64    `json:"slope" validate:"required,gt=0"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// recordSlopeResponse is the payload of POST /slopes. It echoes the stored
// observation along with the refreshed learned average.
type recordSlopeResponse struct {
	DeviceID            string          `json:"device_id"`
	Recorded            types.SlopeData `json:"recorded"`
	LearnedHeatingSlope float64         `json:"learned_heating_slope"`
}

// HandleRecordSlope handles POST /v1/devices/{deviceID}/slopes.
// Records one observed slope and returns the refreshed learned average.
func (h *DeviceHandler) HandleRecordSlope(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req recordSlopeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ts := h.clock.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	data, err := types.NewSlopeData(req.Slope, ts)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.slopes.SaveSlopeData(r.Context(), deviceID, data); err != nil {
		core.Error(w, r, err)
		return
	}

	learned, err := h.slopes.GetLearnedHeatingSlope(r.Context(), deviceID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("slope recorded", "device_id", deviceID, "slope", req.Slope)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: recordSlopeResponse{
		DeviceID:            deviceID,
		Recorded:            data,
		LearnedHeatingSlope: learned,
	}})
}

// HandleClearSlopes handles DELETE /v1/devices/{deviceID}/slopes.
func (h *DeviceHandler) HandleClearSlopes(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if err := h.slopes.ClearSlopeHistory(r.Context(), deviceID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("slope history cleared", "device_id", deviceID)
	w.WriteHeader(http.StatusNoContent)
}

// parseWindow parses the from/to query parameters. Both must be present and
// valid RFC3339 timestamps, and from must precede to.
func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"from and to query parameters must both be provided",
			nil,
		)
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, types.NewAppError(
			types.ErrCodeValidationNaiveTimestamp,
			"from must be a valid RFC3339 timestamp",
			err,
		)
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, types.NewAppError(
			types.ErrCodeValidationNaiveTimestamp,
			"to must be a valid RFC3339 timestamp",
			err,
		)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, types.NewAppError(
			types.ErrCodeValidationInvalidDuration,
			"from must precede to",
			nil,
		)
	}
	return from.UTC(), to.UTC(), nil
}
