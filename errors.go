package cmdmox

import (
	"fmt"
	"strings"
)

// LifecycleError reports an operation performed in the wrong controller
// phase, e.g. Verify before Replay.
type LifecycleError struct {
	Action  string
	Current Phase
	Wanted  Phase
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("cannot call %s(): not in %q phase (current phase: %q)",
		e.Action, strings.ToLower(string(e.Wanted)), strings.ToLower(string(e.Current)))
}

// MissingEnvironmentError reports that replay was attempted but the
// environment resource is not ready.
type MissingEnvironmentError struct {
	Missing []string
}

func (e *MissingEnvironmentError) Error() string {
	if len(e.Missing) == 0 {
		return "replay environment is not ready"
	}
	return "missing environment attributes: " + strings.Join(e.Missing, ", ")
}

// ConfigurationError reports invalid controller or expectation
// configuration: empty command names, conflicting kinds, non-positive
// bounds, mismatched matcher counts.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "invalid configuration: " + e.Msg }

// UnexpectedCommandError reports an invocation that matched no
// expectation, or an expectation called more often than declared.
type UnexpectedCommandError struct {
	Msg string
}

func (e *UnexpectedCommandError) Error() string { return e.Msg }

// UnfulfilledExpectationError reports an expectation whose count or
// order requirement was not met.
type UnfulfilledExpectationError struct {
	Msg string
}

func (e *UnfulfilledExpectationError) Error() string { return e.Msg }

// VerificationError aggregates every discrepancy the verifier found
// into a single multi-section error. Individual failures remain
// reachable through errors.As / errors.Is via Unwrap.
type VerificationError struct {
	Failures []error
}

func (e *VerificationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "verification failed with %d problem(s):", len(e.Failures))
	for i, failure := range e.Failures {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, failure.Error())
	}
	return b.String()
}

// Unwrap exposes the aggregated failures for errors.Is and errors.As.
func (e *VerificationError) Unwrap() []error { return e.Failures }
