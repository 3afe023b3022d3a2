package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"preheat/internal/config"
	"preheat/internal/types"
)

// RecorderClient reads historical sensor data from the recorder service. It
// implements types.HistoricalDataReader.
//
// The recorder exposes two read endpoints:
//
//	GET /api/history/state?device_id=...&start=...&end=...
//	GET /api/history/signal/{signal}?device_id=...&start=...&end=...
//
// Both take RFC3339 bounds and return chronologically ordered JSON arrays.
type RecorderClient struct {
	base    *BaseClient
	baseURL string
	token   types.SecretString
}

// NewRecorderClient creates a RecorderClient from configuration.
func NewRecorderClient(httpClient *http.Client, cfg config.RecorderConfig, opts ...BaseClientOption) *RecorderClient {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	return &RecorderClient{
		base:    NewBaseClient(httpClient, "recorder", policy, cfg.UserAgent, opts...),
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
	}
}

// NewRecorderClientWithBase creates a RecorderClient with a caller-provided
// BaseClient. Useful for testing with a shared breaker or fast retries.
func NewRecorderClientWithBase(base *BaseClient, cfg config.RecorderConfig) *RecorderClient {
	return &RecorderClient{
		base:    base,
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
	}
}

// stateRecord is the recorder's wire format for one thermostat state sample.
type stateRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Mode        string    `json:"mode"`
	CurrentTemp *float64  `json:"current_temp"`
	TargetTemp  *float64  `json:"target_temp"`
}

// signalRecord is the recorder's wire format for one sensor sample.
type signalRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// GetStateHistory returns the thermostat state stream for [from, to).
func (c *RecorderClient) GetStateHistory(ctx context.Context, deviceID string, from, to time.Time) ([]types.StateSample, error) {
	endpoint := fmt.Sprintf("%s/api/history/state", c.baseURL)

	var records []stateRecord
	if err := c.getJSON(ctx, endpoint, deviceID, from, to, &records); err != nil {
		return nil, err
	}

	samples := make([]types.StateSample, len(records))
	for i, rec := range records {
		samples[i] = types.StateSample{
			Timestamp:   rec.Timestamp.UTC(),
			Mode:        types.HVACMode(rec.Mode),
			CurrentTemp: rec.CurrentTemp,
			TargetTemp:  rec.TargetTemp,
		}
	}
	return samples, nil
}

// GetSignalHistory returns one sensor series for [from, to).
func (c *RecorderClient) GetSignalHistory(ctx context.Context, deviceID string, signal types.Signal, from, to time.Time) ([]types.SamplePoint, error) {
	endpoint := fmt.Sprintf("%s/api/history/signal/%s", c.baseURL, url.PathEscape(string(signal)))

	var records []signalRecord
	if err := c.getJSON(ctx, endpoint, deviceID, from, to, &records); err != nil {
		return nil, err
	}

	points := make([]types.SamplePoint, len(records))
	for i, rec := range records {
		points[i] = types.SamplePoint{
			Timestamp: rec.Timestamp.UTC(),
			Value:     rec.Value,
		}
	}
	return points, nil
}

// getJSON issues one authenticated history query and decodes the response
// array into out.
func (c *RecorderClient) getJSON(ctx context.Context, endpoint, deviceID string, from, to time.Time, out any) error {
	query := url.Values{}
	query.Set("device_id", deviceID)
	query.Set("start", from.UTC().Format(time.RFC3339))
	query.Set("end", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build recorder request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token.Unmask())
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamRecorder, "recorder history query failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamRecorder,
			"recorder returned an unexpected status",
			nil,
			map[string]any{"status": resp.StatusCode, "device_id": deviceID},
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamRecorder, "failed to decode recorder response", err)
	}
	return nil
}
