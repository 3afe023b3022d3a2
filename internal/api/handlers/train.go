package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"preheat/internal/core"
)

// HandleTrain handles POST /v1/devices/{deviceID}/train.
// It runs the full training pipeline synchronously: fetch history, extract
// cycles, build examples, fit the regressor, and persist the model.
//
// Insufficient history maps to 422 via the error envelope; the details carry
// the extracted/valid/required counts so callers can tell how far short the
// device fell.
func (h *DeviceHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	report, err := h.trainer.Train(r.Context(), deviceID)
	if err != nil {
		h.logger.Warn("training run failed", "device_id", deviceID, "error", err)
		core.Error(w, r, err)
		return
	}

	h.logger.Info("training run completed",
		"device_id", deviceID,
		"cycles_extracted", report.CyclesExtracted,
		"examples_used", report.ExamplesUsed,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}
