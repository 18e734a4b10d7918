package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrValidation = errors.New("federation validation failed")
	ErrExecution  = errors.New("federation execution failed")
	ErrTimeout    = errors.New("federation timed out")
	ErrInternal   = errors.New("federation internal error")
)

// ErrorKind classifies a federation error for callers that map it onto a
// transport status.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindExecution  ErrorKind = "execution"
	KindTimeout    ErrorKind = "timeout"
	KindInternal   ErrorKind = "internal"
	KindCancelled  ErrorKind = "cancelled"
	KindUnknown    ErrorKind = "unknown"
)

// ValidationError reports a malformed or unresolvable query. It never
// involves backend I/O.
type ValidationError struct {
	Message          string
	Fragment         string
	AvailableAliases []string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Fragment != "" {
		msg = fmt.Sprintf("%s: '%s'", msg, e.Fragment)
	}
	if len(e.AvailableAliases) > 0 {
		msg = fmt.Sprintf("%s (available aliases: %s)", msg, strings.Join(e.AvailableAliases, ", "))
	} else if e.AvailableAliases != nil {
		msg += " (no connection aliases available)"
	}
	return msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Execution phases.
const (
	PhaseFetch       = "fetch"
	PhaseCreateTable = "create_table"
	PhaseLoad        = "load"
	PhaseExecute     = "execute"
)

// ExecutionError wraps a failure from a backend or from the local engine,
// tagged with the source or query it concerns.
type ExecutionError struct {
	Phase      string
	Alias      string
	Table      string
	LocalTable string
	Query      string
	Cause      error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Phase)
	switch {
	case e.Alias != "":
		fmt.Fprintf(&b, " failed for source '%s.%s'", e.Alias, e.Table)
	case e.LocalTable != "":
		fmt.Fprintf(&b, " failed for local table '%s'", e.LocalTable)
	default:
		b.WriteString(" failed")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Query != "" {
		fmt.Fprintf(&b, " (query: %s)", e.Query)
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// Timeout scopes.
const (
	ScopeSource     = "source"
	ScopeFederation = "federation"
)

// TimeoutError reports an elapsed per-source or whole-request deadline.
type TimeoutError struct {
	Scope    string
	Alias    string
	Table    string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Scope == ScopeSource {
		return fmt.Sprintf("source '%s.%s' timed out after %s", e.Alias, e.Table, e.Duration)
	}
	return fmt.Sprintf("federated query timed out after %s", e.Duration)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// InternalError reports an unexpected failure such as a panicking fetch task.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Message, e.Cause)
	}
	return "internal error: " + e.Message
}

func (e *InternalError) Unwrap() error { return e.Cause }

func (e *InternalError) Is(target error) bool { return target == ErrInternal }

func panicError(where string, r interface{}) *InternalError {
	if err, ok := r.(error); ok {
		return &InternalError{Message: "panic in " + where, Cause: err}
	}
	return &InternalError{Message: fmt.Sprintf("panic in %s: %v", where, r)}
}

// KindOf classifies err. Nil maps to the empty kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrInternal):
		return KindInternal
	case errors.Is(err, ErrExecution):
		return KindExecution
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindUnknown
	}
}
