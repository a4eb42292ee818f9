package utils

import (
	"fmt"

	"github.com/dl-alexandre/memora/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	// Remote errors (20-29)
	ExitNotFound         = 20
	ExitPermissionDenied = 21
	ExitInvalidResponse  = 22
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	ExitInvalidPath     = 41
	ExitInvalidConfig   = 42
	// Local state errors (50-59)
	ExitLocalStore = 50
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeAuthExpired      = "AUTH_EXPIRED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInvalidResponse  = "INVALID_RESPONSE"
	ErrCodeNetworkError     = "NETWORK_ERROR"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrCodeInvalidPath      = "INVALID_PATH"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
	ErrCodeLocalStore       = "LOCAL_STORE"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeUnknown          = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:     ExitAuthRequired,
		ErrCodeAuthExpired:      ExitAuthExpired,
		ErrCodePermissionDenied: ExitPermissionDenied,
		ErrCodeNotFound:         ExitNotFound,
		ErrCodeInvalidResponse:  ExitInvalidResponse,
		ErrCodeNetworkError:     ExitNetworkError,
		ErrCodeTimeout:          ExitTimeout,
		ErrCodeRateLimited:      ExitRateLimited,
		ErrCodeInvalidArgument:  ExitInvalidArgument,
		ErrCodeInvalidPath:      ExitInvalidPath,
		ErrCodeInvalidConfig:    ExitInvalidConfig,
		ErrCodeLocalStore:       ExitLocalStore,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	if e.CLIError.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.CLIError.Code, e.CLIError.Message, e.CLIError.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// Unwrap exposes the underlying error, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps the originating error reachable via errors.Is/As
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}
