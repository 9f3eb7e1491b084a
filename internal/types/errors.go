package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is a validation error for one request or config field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects field validation errors. It implements error so
// callers can return it directly from request handlers.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Error returns all field errors joined into one message.
func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message, Value: value})
}

// HasErrors reports whether any field error was collected.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// FromValidator converts go-playground validator errors into a
// ValidationError, or nil when err is nil or of another kind.
func FromValidator(err error) *ValidationError {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Errors: []FieldError{{Field: "request", Message: err.Error()}}}
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Add(strings.ToLower(fe.Field()), fmt.Sprintf("failed %q constraint", fe.Tag()), fe.Value())
	}
	return out
}
