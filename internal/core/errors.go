package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrContextParse       ErrorCode = "DASH_CONTEXT_PARSE"
	ErrNotFound           ErrorCode = "DASH_NOT_FOUND"
	ErrWindowBlocked      ErrorCode = "DASH_WINDOW_BLOCKED"
	ErrAuthTimeout        ErrorCode = "DASH_AUTH_HANDSHAKE_TIMEOUT"
	ErrAuthHandshake      ErrorCode = "DASH_AUTH_HANDSHAKE"
	ErrUnexpectedPhase    ErrorCode = "DASH_UNEXPECTED_PHASE"
	ErrRequestFailure     ErrorCode = "DASH_REQUEST_FAILURE"
	ErrBadRequest         ErrorCode = "DASH_BAD_REQUEST"
	ErrConflict           ErrorCode = "DASH_CONFLICT"
	ErrServiceUnavailable ErrorCode = "DASH_SERVICE_UNAVAILABLE"
	ErrInternal           ErrorCode = "DASH_INTERNAL"
)

// Remote service error codes carried in JSON-RPC error replies.
const (
	RPCNotFound     = 404
	RPCContextParse = 422
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest, ErrContextParse:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrWindowBlocked, ErrAuthHandshake:
		return http.StatusUnauthorized
	case ErrRequestFailure, ErrUnexpectedPhase:
		return http.StatusBadGateway
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrAuthTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error value stored on sessions and returned by clients.
// RPCCode and Data are set when the error came back from the remote service.
type AppError struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	RPCCode int             `json:"rpc_code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// NewRequestFailure builds a RequestFailure carrying the remote code and data.
func NewRequestFailure(rpcCode int, msg string, data json.RawMessage) *AppError {
	code := ErrRequestFailure
	switch rpcCode {
	case RPCNotFound:
		code = ErrNotFound
	case RPCContextParse:
		code = ErrContextParse
	}
	return &AppError{Code: code, Message: msg, RPCCode: rpcCode, Data: data}
}

// AsAppError unwraps err into an *AppError, wrapping foreign errors as
// RequestFailure.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(ErrRequestFailure, err.Error())
}

// Sentinels for errors.Is. Matching is by code only.
var (
	WindowBlockedError        = NewAppError(ErrWindowBlocked, "window could not be opened")
	AuthHandshakeTimeoutError = NewAppError(ErrAuthTimeout, "authorization timed out")
	HandshakePendingError     = NewAppError(ErrConflict, "an authorization handshake is already pending")
	NotConnectedError         = NewAppError(ErrServiceUnavailable, "not connected to the remote service")
)

// AuthHandshakeError reports a failure message delivered by the
// authorization window.
func AuthHandshakeError(msg string) *AppError {
	return NewAppError(ErrAuthHandshake, msg)
}

// UnexpectedPhaseError reports a phase missing from the phase table.
func UnexpectedPhaseError(phase InstancePhase) *AppError {
	return NewAppError(ErrUnexpectedPhase, fmt.Sprintf("unexpected instance phase %q", phase))
}
