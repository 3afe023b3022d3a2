package core

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"preheat/internal/types"
)

// Validator wraps go-playground/validator to translate struct-tag validation
// failures into the structured error envelope the API returns.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct runs the struct's validate tags. On failure it returns a
// *types.AppError (400) whose details map each failed field to the rule it
// violated.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"request failed validation",
			err,
			details,
		)
	}

	// InvalidValidationError: the caller passed a non-struct value.
	v.logger.Error("validator invoked with invalid value", "error", err)
	return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
}
