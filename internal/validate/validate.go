// Package validate checks console forms before anything is sent to the backend.
package validate

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator with the console's rules.
type Validator struct {
	validator *validator.Validate
}

// New creates a validator. Field names in messages come from the form tag, then the json tag.
func New() *Validator {
	validate := validator.New()
	registerCustomValidators(validate)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	return &Validator{validator: validate}
}

// Struct validates s and returns a *ValidationError describing every failing field.
func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	return NewValidationError(errs)
}

// Var validates a single value against tag.
func (v *Validator) Var(field any, tag string) error {
	return v.validator.Var(field, tag)
}

// ValidationError maps form field names to user facing messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Field returns the message for one field, or "".
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

// NewValidationError converts validator errors to messages.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	for _, err := range errs {
		field := err.Field()
		label := strings.ReplaceAll(field, "_", " ")

		switch err.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", label)
		case "email":
			fields[field] = fmt.Sprintf("%s must be a valid email address", label)
		case "min":
			fields[field] = fmt.Sprintf("%s must be at least %s characters long", label, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s characters long", label, err.Param())
		case "eqfield":
			fields[field] = fmt.Sprintf("%s does not match", label)
		case "password":
			fields[field] = "password must be at least 8 characters and contain a letter and a number"
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", label, err.Param())
		default:
			fields[field] = fmt.Sprintf("%s is invalid", label)
		}
	}
	return &ValidationError{Fields: fields}
}

func registerCustomValidators(validate *validator.Validate) {
	// Matches the backend's password policy.
	_ = validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		if len(password) < 8 {
			return false
		}
		var hasLetter, hasDigit bool
		for _, r := range password {
			switch {
			case unicode.IsLetter(r):
				hasLetter = true
			case unicode.IsDigit(r):
				hasDigit = true
			}
		}
		return hasLetter && hasDigit
	})
}
