package serrors

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// BaseError is the standardized error carried across module boundaries.
// Code is a stable machine-readable identifier, Message a human-readable
// default rendering.
type BaseError struct {
	Code         string
	Message      string
	TemplateData map[string]string
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message string) *BaseError {
	return &BaseError{Code: code, Message: message}
}

func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	e.TemplateData = data
	return e
}

type ValidationError struct {
	Field   string
	Tag     string
	Message string
}

type ValidationErrors map[string]*ValidationError

// ProcessValidatorErrors converts go-playground validation failures into
// field-keyed errors suitable for API responses.
func ProcessValidatorErrors(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, err := range errs {
		out[err.Field()] = &ValidationError{
			Field:   err.Field(),
			Tag:     err.Tag(),
			Message: fmt.Sprintf("validation failed on field %q, tag %q", err.Field(), err.Tag()),
		}
	}
	return out
}
