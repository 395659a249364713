package data

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

func ValidateStruct(s any) (map[string]string, error) {
	err := validate.Struct(s)
	if err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil, fmt.Errorf("invalid validation error: %w", err)
		}

		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return nil, err
		}
		errorsMap := make(map[string]string)
		for _, fieldErr := range validationErrors {
			errorsMap[fieldErr.Field()] = fmt.Sprintf("failed on '%s' tag", fieldErr.Tag())
		}
		return errorsMap, fmt.Errorf("validation errors")
	}
	return nil, nil
}

// Validate runs ValidateStruct and reports failures as an INVALID_ARGUMENT error
// carrying the field map as metadata.
func Validate(s any) error {
	fields, err := ValidateStruct(s)
	if err == nil {
		return nil
	}
	if fields == nil {
		return err
	}
	return apperrors.WithMetadata(apperrors.KindInvalidArgument, "validation failed", fields)
}
