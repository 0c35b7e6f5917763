package config

import (
	"fmt"
	"net"
	"strings"
)

// =============================================================================
// CONFIG VALIDATION MODULE
// =============================================================================
//
// FAIL-FAST: Bad config -> immediate, clear error -> fix before fetching
//
// PATTERN: ACCUMULATE ERRORS
// We collect ALL validation errors and return them together so the operator
// can fix everything in one pass instead of playing whack-a-mole.
//
// =============================================================================

// ValidationError holds one or more configuration validation failures.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface.
// Formats all validation errors as a numbered list for readability.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err)
	}
	return b.String()
}

// Validate checks the configuration for common mistakes.
// Returns nil if valid, or a *ValidationError with all problems found.
func (f *File) Validate() error {
	var errs []string

	if f.API.Addr == "" {
		errs = append(errs, "api.addr: must not be empty")
	} else if err := validateAddress(f.API.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("api.addr: invalid: %v", err))
	}
	if f.API.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("api.read_timeout: must be >= 0, got %s", f.API.ReadTimeout))
	}
	if f.API.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("api.write_timeout: must be >= 0, got %s", f.API.WriteTimeout))
	}

	if f.Fetcher.MaxPartitionsPerRequest < 0 {
		errs = append(errs, fmt.Sprintf("fetcher.max_partitions_per_request: must be >= 0, got %d", f.Fetcher.MaxPartitionsPerRequest))
	}

	if f.Metrics.Enabled && strings.ContainsAny(f.Metrics.Namespace, " -.\t") {
		errs = append(errs, fmt.Sprintf("metrics.namespace: %q must be a valid Prometheus name", f.Metrics.Namespace))
	}

	errs = append(errs, validateAssignment(f.Assignment)...)

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// validateAssignment checks topic entries for empty names, negative
// partitions and negative offsets, and rejects partitions listed twice.
func validateAssignment(entries []TopicAssignment) []string {
	var errs []string
	seen := make(map[string]map[int32]bool)

	for i, ta := range entries {
		if strings.TrimSpace(ta.Topic) == "" {
			errs = append(errs, fmt.Sprintf("assignment[%d].topic: must not be empty", i))
			continue
		}
		if len(ta.Partitions) == 0 {
			errs = append(errs, fmt.Sprintf("assignment[%d].partitions: at least one partition is required for topic %q", i, ta.Topic))
		}
		if ta.Offset < 0 {
			errs = append(errs, fmt.Sprintf("assignment[%d].offset: must be >= 0, got %d", i, ta.Offset))
		}

		if seen[ta.Topic] == nil {
			seen[ta.Topic] = make(map[int32]bool)
		}
		for _, p := range ta.Partitions {
			if p < 0 {
				errs = append(errs, fmt.Sprintf("assignment[%d].partitions: negative partition %d for topic %q", i, p, ta.Topic))
				continue
			}
			if seen[ta.Topic][p] {
				errs = append(errs, fmt.Sprintf("assignment[%d].partitions: %s-%d assigned more than once", i, ta.Topic, p))
				continue
			}
			seen[ta.Topic][p] = true
		}
	}

	return errs
}

// validateAddress checks that a string is a valid host:port or :port address.
func validateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be host:port format: %w", err)
	}
	if port == "" {
		return fmt.Errorf("port must not be empty")
	}
	return nil
}
