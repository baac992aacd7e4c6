package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.max_workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateDispatch()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.MinWorkers < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.min_workers",
			Value:   c.Pool.MinWorkers,
			Message: "must be non-negative",
		})
	}
	if c.Pool.MaxWorkers <= 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.max_workers",
			Value:   c.Pool.MaxWorkers,
			Message: "must be positive",
		})
	}
	if c.Pool.MaxWorkers > 0 && c.Pool.MaxWorkers < c.Pool.MinWorkers {
		errors = append(errors, ValidationError{
			Field:   "pool.max_workers",
			Value:   c.Pool.MaxWorkers,
			Message: fmt.Sprintf("must be at least pool.min_workers (%d)", c.Pool.MinWorkers),
		})
	}
	if c.Pool.KeepAliveMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.keep_alive_ms",
			Value:   c.Pool.KeepAliveMs,
			Message: "must be positive",
		})
	}

	return errors
}

// validateDispatch validates the DispatchConfig
func (c *Config) validateDispatch() []ValidationError {
	var errors []ValidationError

	if c.Dispatch.CoalesceDelayMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.coalesce_delay_ms",
			Value:   c.Dispatch.CoalesceDelayMs,
			Message: "must be positive",
		})
	}

	// Upper bound for the coalescing window
	const maxCoalesceDelayMs = 1000
	if c.Dispatch.CoalesceDelayMs > maxCoalesceDelayMs {
		errors = append(errors, ValidationError{
			Field:   "dispatch.coalesce_delay_ms",
			Value:   c.Dispatch.CoalesceDelayMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxCoalesceDelayMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if !c.Metrics.Enabled {
		return errors
	}
	if c.Metrics.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "required when metrics are enabled",
		})
	}
	if c.Metrics.PollIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "metrics.poll_interval_ms",
			Value:   c.Metrics.PollIntervalMs,
			Message: "must be positive",
		})
	}

	return errors
}
