package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators is the hook for firewall-specific validation
// rules. It registers none and always returns nil.
func RegisterCustomValidators(v *validator.Validate) error {
	return nil
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateBenchmarkBounds(); err != nil {
		return err
	}

	return nil
}

// validateBenchmarkBounds ensures max_concurrent_samples and batch_size are
// each at least 1. Their relative sizes are not checked: a batch_size
// larger than max_concurrent_samples just means some goroutines in a batch
// queue behind others.
func (c *Config) validateBenchmarkBounds() error {
	if c.Benchmark.MaxConcurrentSamples < 1 {
		return errors.New("benchmark.max_concurrent_samples must be at least 1")
	}
	if c.Benchmark.BatchSize < 1 {
		return errors.New("benchmark.batch_size must be at least 1")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
