package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tubegrade/tubegrade/oracle"
)

// Issue captures a validation problem with a config field.
type Issue struct {
	Field   string
	Message string
}

// ValidationError aggregates config validation issues.
type ValidationError struct {
	Issues []Issue
}

// Error renders validation errors as a multi-line string.
func (err *ValidationError) Error() string {
	if err == nil || len(err.Issues) == 0 {
		return "config validation failed"
	}
	lines := make([]string, 0, len(err.Issues))
	for _, issue := range err.Issues {
		lines = append(lines, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return strings.Join(lines, "\n")
}

func (err *ValidationError) add(field, format string, args ...any) {
	err.Issues = append(err.Issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate returns a *ValidationError listing every problem, or nil.
func Validate(cfg *Config) error {
	verr := &ValidationError{}

	required := []struct {
		field string
		value string
	}{
		{"executable", cfg.Executable},
		{"reference", cfg.Reference},
		{"engine", cfg.Engine},
	}
	for _, r := range required {
		if r.value == "" {
			verr.add(r.field, "is required")
		}
	}
	if cfg.IR && cfg.IREngine == "" {
		verr.add("ir_engine", "is required when ir is enabled")
	}
	if !cfg.IR && !cfg.Final {
		verr.add("final", "at least one of ir and final must be enabled")
	}

	for _, pattern := range append(append([]string{}, cfg.Tests...), cfg.Extra...) {
		if _, err := filepath.Match(pattern, ""); err != nil {
			verr.add("tests", "invalid glob %q: %v", pattern, err)
		}
	}
	if cfg.ReadmeGlob != "" {
		if _, err := filepath.Match(cfg.ReadmeGlob, ""); err != nil {
			verr.add("readme_glob", "invalid glob %q: %v", cfg.ReadmeGlob, err)
		}
	}

	if cfg.TestTimeout <= 0 {
		verr.add("test_timeout", "must be positive")
	}
	if cfg.MakeTimeout <= 0 {
		verr.add("make_timeout", "must be positive")
	}

	switch cfg.ReferenceOverBudget {
	case oracle.PolicyFault, oracle.PolicyIgnore:
	default:
		verr.add("reference_over_budget", "unknown policy %q (expected %s|%s)",
			cfg.ReferenceOverBudget, oracle.PolicyFault, oracle.PolicyIgnore)
	}

	if len(cfg.Rubric.Criteria) == 0 {
		verr.add("rubric", "at least one criterion is required")
	} else if err := cfg.Rubric.Validate(); err != nil {
		verr.add("rubric", "%v", err)
	}

	if len(verr.Issues) > 0 {
		return verr
	}
	return nil
}
