package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"preheat/internal/types"
)

// ModelRepository provides data access for the models table. It implements
// types.ModelStorage. The serialized model payload is stored opaquely; only
// the metadata is queryable.
type ModelRepository struct {
	db    DBTX
	clock types.Clock
}

// NewModelRepository creates a ModelRepository backed by the given database
// connection (pool or transaction).
func NewModelRepository(db DBTX, clock types.Clock) *ModelRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &ModelRepository{db: db, clock: clock}
}

// SaveModel upserts the device's model: one current model per device, last
// writer wins.
func (r *ModelRepository) SaveModel(ctx context.Context, deviceID string, payload []byte, meta types.ModelMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode model metadata", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO models (device_id, payload, metadata, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (device_id) DO UPDATE
		 SET payload = EXCLUDED.payload, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`,
		deviceID, payload, metaJSON, r.clock.Now(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save model", err)
	}
	return nil
}

// LoadModel returns the stored payload and metadata.
func (r *ModelRepository) LoadModel(ctx context.Context, deviceID string) ([]byte, types.ModelMetadata, error) {
	var (
		payload  []byte
		metaJSON []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT payload, metadata FROM models WHERE device_id = $1`,
		deviceID,
	).Scan(&payload, &metaJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ModelMetadata{}, types.NewAppErrorWithDetails(
				types.ErrCodeNotFoundModel,
				"no trained model for device",
				nil,
				map[string]any{"device_id": deviceID},
			)
		}
		return nil, types.ModelMetadata{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load model", err)
	}

	var meta types.ModelMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, types.ModelMetadata{}, types.NewAppError(types.ErrCodeInternalDB, "failed to decode model metadata", err)
	}
	return payload, meta, nil
}

// ModelExists reports whether a trained model is stored for the device.
func (r *ModelRepository) ModelExists(ctx context.Context, deviceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM models WHERE device_id = $1)`,
		deviceID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check model existence", err)
	}
	return exists, nil
}

// GetModelMetadata returns only the metadata, without the payload.
func (r *ModelRepository) GetModelMetadata(ctx context.Context, deviceID string) (types.ModelMetadata, error) {
	var metaJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT metadata FROM models WHERE device_id = $1`,
		deviceID,
	).Scan(&metaJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ModelMetadata{}, types.NewAppErrorWithDetails(
				types.ErrCodeNotFoundModel,
				"no trained model for device",
				nil,
				map[string]any{"device_id": deviceID},
			)
		}
		return types.ModelMetadata{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load model metadata", err)
	}

	var meta types.ModelMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return types.ModelMetadata{}, types.NewAppError(types.ErrCodeInternalDB, "failed to decode model metadata", err)
	}
	return meta, nil
}
