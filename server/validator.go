package server

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hyvewellness/tenantgate/tenant"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	hostnamePattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
)

// Validator wraps go-playground/validator with the tenant field rules.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the custom rules:
//
//	tenantslug   lowercase letters, digits and single dashes
//	tenantdomain a hostname, or *.hostname when the field allows wildcards
func NewValidator() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("tenantslug", validateSlug); err != nil {
		return nil, fmt.Errorf("register tenantslug: %w", err)
	}
	if err := v.RegisterValidation("tenantdomain", validateDomain); err != nil {
		return nil, fmt.Errorf("register tenantdomain: %w", err)
	}
	return &Validator{validate: v}, nil
}

// Validate performs validation on the provided struct.
func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// non-struct requests have nothing to validate
			return nil
		}
		return err
	}
	return nil
}

// ValidationError carries one entry per failed field.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// NewValidationError converts go-playground/validator errors.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fieldErrors := make([]FieldError, 0, len(errs))
	for _, err := range errs {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   err.Field(),
			Message: getErrorMessage(err),
			Value:   fmt.Sprintf("%v", err.Value()),
		})
	}
	return &ValidationError{Errors: fieldErrors}
}

func (ve *ValidationError) Error() string {
	switch len(ve.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s", ve.Errors[0].Message)
	default:
		return fmt.Sprintf("validation failed: %d errors", len(ve.Errors))
	}
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "tenantslug":
		return fmt.Sprintf("%s must contain only lowercase letters, digits and dashes", fe.Field())
	case "tenantdomain":
		return fmt.Sprintf("%s must be a hostname", fe.Field())
	default:
		return fmt.Sprintf("%s failed validation", fe.Field())
	}
}

func validateSlug(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || slugPattern.MatchString(s)
}

// validateDomain accepts an empty value so optional fields can combine it with omitempty
// semantics. The "wildcard" param allows *.hostname patterns.
func validateDomain(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return true
	}
	if fl.Param() == "wildcard" && strings.HasPrefix(s, tenant.WildcardPrefix) {
		s = strings.TrimPrefix(s, tenant.WildcardPrefix)
	}
	return hostnamePattern.MatchString(strings.ToLower(s))
}
