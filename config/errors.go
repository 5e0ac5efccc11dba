package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured indicates an optional feature was left unconfigured.
var ErrNotConfigured = errors.New("not configured")

// ConfigError is a configuration problem with an actionable hint.
// All messages are lowercase.
//
//nolint:revive // exported name reads better at call sites as config.ConfigError
type ConfigError struct {
	Category string   // missing, invalid, not_configured, connection
	Field    string   // config key, e.g. "tenancy.header"
	Message  string
	Action   string
	Details  []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if e.Category != "" {
		parts = append(parts, fmt.Sprintf("config_%s:", e.Category))
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Action != "" {
		parts = append(parts, e.Action)
	}
	if len(e.Details) > 0 {
		parts = append(parts, strings.Join(e.Details, "; "))
	}
	return strings.Join(parts, " ")
}

// NewMissingFieldError reports a required key that has no value.
func NewMissingFieldError(field string) *ConfigError {
	return &ConfigError{
		Category: "missing",
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s env var or add %s to config.yaml", EnvVar(field), field),
	}
}

// NewInvalidFieldError reports a value outside the accepted set.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{
		Category: "invalid",
		Field:    field,
		Message:  message,
	}
	if len(validOptions) > 0 {
		err.Action = fmt.Sprintf("must be one of: %s", strings.Join(validOptions, ", "))
	}
	return err
}

// NewNotConfiguredError describes how to enable an optional feature.
func NewNotConfiguredError(field string) *ConfigError {
	return &ConfigError{
		Category: "not_configured",
		Field:    field,
		Message:  "(optional)",
		Action:   fmt.Sprintf("to enable: set %s env var or add %s to config.yaml", EnvVar(field), field),
	}
}

// NewConnectionError reports a configured resource that could not be reached.
func NewConnectionError(resource, message string, troubleshooting []string) *ConfigError {
	return &ConfigError{
		Category: "connection",
		Field:    resource,
		Message:  message,
		Details:  troubleshooting,
	}
}

// NewTenantError reports a problem with one statically declared tenant.
func NewTenantError(index int, field, message string) *ConfigError {
	return &ConfigError{
		Category: "invalid",
		Field:    fmt.Sprintf("tenancy.tenants[%d].%s", index, field),
		Message:  message,
	}
}

// IsNotConfigured reports whether err marks an optional feature as unconfigured.
func IsNotConfigured(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr.Category == "not_configured"
	}
	return false
}

// EnvVar returns the environment variable that sets a config key.
func EnvVar(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
