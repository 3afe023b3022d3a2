package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"preheat/internal/core"
	"preheat/internal/prediction"
	"preheat/internal/types"
)

// predictRequest is the body of POST /v1/devices/{deviceID}/predict.
//
// Contextual selects the time-of-day windowed slope around the target time
// instead of the cached overall average. Environmental correctors are
// optional; absent values skip their correction factor.
type predictRequest struct {
	CurrentTemp float64   `json:"current_temp" validate:"gte=-50,lte=50"`
	TargetTemp  float64   `json:"target_temp" validate:"gte=-50,lte=50"`
	TargetTime  time.Time `json:"target_time" validate:"required"`
	Contextual  bool      `json:"contextual"`

	OutdoorTemp   *float64 `json:"outdoor_temp,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	CloudCoverage *float64 `json:"cloud_coverage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// HandlePredict handles POST /v1/devices/{deviceID}/predict.
// It resolves the device's learned heating slope, estimates the heating
// duration with correction factors, and returns the anticipated start time.
func (h *DeviceHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req predictRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	slope, err := h.resolveSlope(r, deviceID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result := h.predictor.Predict(prediction.Request{
		CurrentTemp:   req.CurrentTemp,
		TargetTemp:    req.TargetTemp,
		LearnedSlope:  slope,
		TargetTime:    req.TargetTime.UTC(),
		OutdoorTemp:   req.OutdoorTemp,
		Humidity:      req.Humidity,
		CloudCoverage: req.CloudCoverage,
	})

	resp := core.APIResponse{Data: result}
	if result.ConfidenceLevel == 0 {
		resp.Meta = &types.ResponseMeta{
			Warnings: []string{"learned heating slope is unusable; prediction carries zero confidence"},
		}
	}
	core.JSON(w, r, http.StatusOK, resp)
}

// resolveSlope picks the learned slope for one prediction: the contextual
// time-of-day average around the target time when requested, otherwise the
// cached overall robust average.
func (h *DeviceHandler) resolveSlope(r *http.Request, deviceID string, req predictRequest) (float64, error) {
	if !req.Contextual {
		return h.slopes.GetLearnedHeatingSlope(r.Context(), deviceID)
	}

	history, err := h.slopes.GetAllSlopeData(r.Context(), deviceID)
	if err != nil {
		return 0, err
	}
	return h.calculator.ContextualLHS(history, req.TargetTime.UTC(), h.lhsCfg.WindowHours), nil
}
