package errors

import (
	"context"
	"errors"
	"net"

	"github.com/dl-alexandre/memora/internal/logging"
	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
)

// ClassifyHTTPError converts a failed metadata or content call into an
// AppError. statusCode is 0 when no response was received.
func ClassifyHTTPError(statusCode int, message string, cause error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}
	if message == "" && cause != nil {
		message = cause.Error()
	}

	if statusCode == 0 {
		return classifyTransportError(message, cause, reqCtx, logger)
	}

	var code string
	var retryable bool

	switch statusCode {
	case 400, 422:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
	case 404:
		code = utils.ErrCodeNotFound
	case 409:
		code = utils.ErrCodeConflict
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
	}

	logger.Error("Remote error classified",
		logging.F("httpStatus", statusCode),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", message),
		logging.F("path", reqCtx.Path),
		logging.F("requestType", string(reqCtx.RequestType)),
	)

	builder := utils.NewCLIError(code, message).
		WithHTTPStatus(statusCode).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType))
	if reqCtx.Path != "" {
		builder.WithContext("path", reqCtx.Path)
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "run 'memora-agent auth login' with a fresh token")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
	}

	if statusCode >= 500 {
		builder.WithContext("serverError", true)
	}

	return utils.WrapAppError(builder.Build(), cause)
}

// ClassifyDecodeError reports a response body that could not be decoded
func ClassifyDecodeError(statusCode int, cause error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}
	logger.Error("Invalid remote response",
		logging.F("httpStatus", statusCode),
		logging.F("error", cause),
		logging.F("path", reqCtx.Path),
	)
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidResponse, cause.Error()).
		WithHTTPStatus(statusCode).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		Build(), cause)
}

func classifyTransportError(message string, cause error, reqCtx *types.RequestContext, logger logging.Logger) error {
	code := utils.ErrCodeNetworkError
	retryable := true

	var netErr net.Error
	switch {
	case errors.Is(cause, context.Canceled):
		code = utils.ErrCodeCancelled
		retryable = false
	case errors.Is(cause, context.DeadlineExceeded):
		code = utils.ErrCodeTimeout
	case errors.As(cause, &netErr) && netErr.Timeout():
		code = utils.ErrCodeTimeout
	}

	logger.Error("Non-HTTP error",
		logging.F("error", message),
		logging.F("errorCode", code),
		logging.F("path", reqCtx.Path),
		logging.F("requestType", string(reqCtx.RequestType)),
	)

	return utils.WrapAppError(utils.NewCLIError(code, message).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		Build(), cause)
}
