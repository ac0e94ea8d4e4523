// Package validation validates configuration structs with struct tags and an
// optional Validate method, reporting snake_case field names.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldError is a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors holds every validation error of a struct.
type Errors struct {
	Errors []FieldError `json:"errors"`
}

func (v *Errors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Struct validates the struct tags of v, then calls its Validate method when
// it has one.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		out := &Errors{}
		for _, e := range fieldErrs {
			out.Errors = append(out.Errors, FieldError{
				Field:   ToSnakeCase(e.Field()),
				Message: formatMessage(e),
			})
		}
		return out
	}

	if c, ok := v.(interface{ Validate() error }); ok {
		if err := c.Validate(); err != nil {
			return &Errors{
				Errors: []FieldError{{Field: "_custom", Message: err.Error()}},
			}
		}
	}
	return nil
}

func formatMessage(e validator.FieldError) string {
	field := ToSnakeCase(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_rfc1123", "ip", "hostname|ip":
		return fmt.Sprintf("%s must be a valid hostname or IP address", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
func ToSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				result.WriteByte('_')
			}
			result.WriteByte(byte(r + 'a' - 'A'))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
