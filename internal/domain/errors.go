package domain

import (
	"errors"
	"fmt"
)

// Category sentinels shared across the orchestrator.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrClosed       = fmt.Errorf("closed")
)

// Sentinel errors for orchestration flows.
var (
	// ErrNoEligibleAgent means no registered agent covers a task's required
	// capabilities. The task stays pending; this is reported, never fatal.
	ErrNoEligibleAgent = fmt.Errorf("no eligible agent")

	// ErrUnknownHandler means no handler is registered for an
	// (agent type, task type) pair. The task fails terminally.
	ErrUnknownHandler = fmt.Errorf("no handler for agent/task type")

	// ErrAlreadyAssigned guards the at-most-once assignment rule.
	ErrAlreadyAssigned = fmt.Errorf("task already assigned")

	// ErrInvalidTransition is returned when a task state change does not
	// follow pending → assigned → executing → {completed | failed}.
	ErrInvalidTransition = fmt.Errorf("invalid task state transition")

	// ErrJournalWrite wraps failures persisting a notification to the
	// event journal.
	ErrJournalWrite = fmt.Errorf("journal write failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Store.Submit")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeClosed            ErrorCode = "CLOSED"
	CodeNoEligibleAgent   ErrorCode = "NO_ELIGIBLE_AGENT"
	CodeUnknownHandler    ErrorCode = "UNKNOWN_HANDLER"
	CodeAlreadyAssigned   ErrorCode = "ALREADY_ASSIGNED"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeJournalWrite      ErrorCode = "JOURNAL_WRITE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrDuplicate:         CodeDuplicate,
	ErrInvalidInput:      CodeInvalidInput,
	ErrClosed:            CodeClosed,
	ErrNoEligibleAgent:   CodeNoEligibleAgent,
	ErrUnknownHandler:    CodeUnknownHandler,
	ErrAlreadyAssigned:   CodeAlreadyAssigned,
	ErrInvalidTransition: CodeInvalidTransition,
	ErrJournalWrite:      CodeJournalWrite,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	// Unwrap DomainError to check its inner sentinel.
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
