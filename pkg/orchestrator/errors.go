package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/codehive/swarmd/pkg/store"
	"github.com/codehive/swarmd/pkg/ticket"
)

// ErrorCategory classifies a pipeline failure for surfacing and retry
// decisions.
type ErrorCategory string

const (
	CategoryTimeout             ErrorCategory = "TIMEOUT"
	CategoryNetwork             ErrorCategory = "NETWORK"
	CategoryValidation          ErrorCategory = "VALIDATION"
	CategoryResource            ErrorCategory = "RESOURCE"
	CategoryHierarchyViolation  ErrorCategory = "HIERARCHY_VIOLATION"
	CategoryCancelled           ErrorCategory = "CANCELLED"
	CategoryProviderUnavailable ErrorCategory = "PROVIDER_UNAVAILABLE"
	CategoryGuardrailRefusal    ErrorCategory = "GUARDRAIL_REFUSAL"
)

// PipelineError is a classified failure escaping a mode runner. Runners
// never leak raw errors to callers; everything is wrapped here before it
// is folded into a SwarmResult.
type PipelineError struct {
	Category    ErrorCategory
	Recoverable bool   // the run could have continued degraded
	Retryable   bool   // a fresh attempt may succeed
	Recovery    string // suggested operator action, may be empty
	Err         error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Classify wraps err in a PipelineError, mapping context errors, hierarchy
// violations and transport failures onto their categories. An error that
// already carries a PipelineError passes through unchanged.
func Classify(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &PipelineError{
			Category:    CategoryTimeout,
			Recoverable: true,
			Retryable:   true,
			Recovery:    "raise max_runtime_seconds or lower parallel counts",
			Err:         err,
		}
	case errors.Is(err, context.Canceled):
		return &PipelineError{Category: CategoryCancelled, Err: err}
	case errors.Is(err, ticket.ErrHierarchyViolation), errors.Is(err, ticket.ErrDependencyCycle):
		return &PipelineError{
			Category: CategoryHierarchyViolation,
			Recovery: "fix the ticket level or parent chain",
			Err:      err,
		}
	}

	var ve *store.ValidationError
	if errors.As(err, &ve) {
		return &PipelineError{
			Category: CategoryValidation,
			Recovery: "correct the rejected field and resubmit",
			Err:      err,
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return &PipelineError{
			Category:    CategoryNetwork,
			Recoverable: true,
			Retryable:   true,
			Recovery:    "check API endpoints and MCP server reachability",
			Err:         err,
		}
	}

	return &PipelineError{Category: CategoryResource, Retryable: true, Err: err}
}
