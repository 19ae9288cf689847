package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its validate struct tags.
func Validate(v any) error {
	return validate.Struct(v)
}

// ValidationMessage renders a validation error as one client-facing sentence.
func ValidationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "Invalid request"
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		field := fieldError.Field()
		var message string
		switch fieldError.Tag() {
		case "required":
			message = field + " is required"
		case "email":
			message = "Invalid email format"
		case "min":
			message = field + " must be at least " + fieldError.Param() + " characters"
		case "max":
			message = field + " must be at most " + fieldError.Param() + " characters"
		case "oneof":
			message = field + " must be one of: " + fieldError.Param()
		case "nefield":
			message = field + " must differ from " + fieldError.Param()
		default:
			message = field + " is invalid"
		}
		messages = append(messages, message)
	}
	return strings.Join(messages, "; ")
}
