package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	// LLM provider failure kinds. All but ErrLLMBadResponse are collapsed
	// into the ErrLLMUnavailable umbrella at the orchestration boundary;
	// the original cause stays in the wrap chain.
	ErrLLMUnavailable = fmt.Errorf("llm service unavailable")
	ErrLLMBadResponse = fmt.Errorf("llm returned an invalid response")
	ErrAuthInvalid    = fmt.Errorf("authentication failed")
	ErrRateLimit      = fmt.Errorf("rate limit exceeded")
	ErrProviderError  = fmt.Errorf("provider error")
	ErrBadRequest     = fmt.Errorf("bad request")

	ErrToolNotFound  = fmt.Errorf("tool not found")
	ErrToolFailure   = fmt.Errorf("tool execution failed")
	ErrMaxIterations = fmt.Errorf("agent reached max iterations")

	ErrChatNotFound    = fmt.Errorf("chat not found")
	ErrFileNotFound    = fmt.Errorf("file not found in knowledge base")
	ErrPathOutsideRoot = fmt.Errorf("path is outside knowledge base root")
	ErrInvalidInput    = fmt.Errorf("invalid input")
)

// IterationLimitError is returned when the agent loop hits its iteration
// ceiling without producing a terminal answer. It carries the configured
// limit and matches ErrMaxIterations under errors.Is.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("agent exceeded maximum iterations (%d)", e.Limit)
}

func (e *IterationLimitError) Is(target error) bool {
	return target == ErrMaxIterations
}

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
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
// Returns nil if err is nil.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeLLMUnavailable  ErrorCode = "LLM_UNAVAILABLE"
	CodeLLMBadResponse  ErrorCode = "LLM_BAD_RESPONSE"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeProviderError   ErrorCode = "PROVIDER_ERROR"
	CodeBadRequest      ErrorCode = "BAD_REQUEST"
	CodeToolNotFound    ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure     ErrorCode = "TOOL_FAILURE"
	CodeMaxIterations   ErrorCode = "MAX_ITERATIONS"
	CodeChatNotFound    ErrorCode = "CHAT_NOT_FOUND"
	CodeFileNotFound    ErrorCode = "FILE_NOT_FOUND"
	CodePathOutsideRoot ErrorCode = "PATH_OUTSIDE_ROOT"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrLLMUnavailable:  CodeLLMUnavailable,
	ErrLLMBadResponse:  CodeLLMBadResponse,
	ErrAuthInvalid:     CodeAuthInvalid,
	ErrRateLimit:       CodeRateLimit,
	ErrProviderError:   CodeProviderError,
	ErrBadRequest:      CodeBadRequest,
	ErrToolNotFound:    CodeToolNotFound,
	ErrToolFailure:     CodeToolFailure,
	ErrMaxIterations:   CodeMaxIterations,
	ErrChatNotFound:    CodeChatNotFound,
	ErrFileNotFound:    CodeFileNotFound,
	ErrPathOutsideRoot: CodePathOutsideRoot,
	ErrInvalidInput:    CodeInvalidInput,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
