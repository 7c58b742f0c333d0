package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "agent.platform")
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

// ValidPlatforms returns the agent runtimes pipewright knows how to launch
func ValidPlatforms() []string {
	return []string{"claude", "opencode", "cursor", "codex"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePR()...)

	if c.Status.LogLines < 0 {
		errors = append(errors, ValidationError{
			Field:   "status.log_lines",
			Value:   c.Status.LogLines,
			Message: "must be non-negative",
		})
	}

	if c.Watch.RefreshMs < 100 {
		errors = append(errors, ValidationError{
			Field:   "watch.refresh_ms",
			Value:   c.Watch.RefreshMs,
			Message: "must be at least 100",
		})
	}

	if strings.ContainsAny(c.Developer, `/\`) {
		errors = append(errors, ValidationError{
			Field:   "developer",
			Value:   c.Developer,
			Message: "must not contain path separators",
		})
	}

	return errors
}

func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidPlatforms(), c.Agent.Platform) {
		errors = append(errors, ValidationError{
			Field:   "agent.platform",
			Value:   c.Agent.Platform,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidPlatforms(), ", ")),
		})
	}

	if c.Agent.StopTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.stop_timeout_seconds",
			Value:   c.Agent.StopTimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if c.Paths.TasksDir == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.tasks_dir",
			Value:   c.Paths.TasksDir,
			Message: "must not be empty",
		})
	} else if strings.ContainsRune(c.Paths.TasksDir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "paths.tasks_dir",
			Value:   c.Paths.TasksDir,
			Message: "path contains invalid null character",
		})
	}

	if c.Paths.ReadinessFile == "" || filepath.Base(c.Paths.ReadinessFile) != c.Paths.ReadinessFile {
		errors = append(errors, ValidationError{
			Field:   "paths.readiness_file",
			Value:   c.Paths.ReadinessFile,
			Message: "must be a plain file name",
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

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validatePR() []ValidationError {
	var errors []ValidationError

	for pattern := range c.PR.ReviewersByPath {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   "pr.reviewers_by_path",
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	if c.PR.Template != "" {
		if _, err := template.New("pr").Parse(c.PR.Template); err != nil {
			errors = append(errors, ValidationError{
				Field:   "pr.template",
				Value:   c.PR.Template,
				Message: fmt.Sprintf("invalid template: %v", err),
			})
		}
	}

	return errors
}
