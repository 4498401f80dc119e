package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a business error
type Error struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Status int    `json:"-"` // HTTP status the error maps to
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code, message and HTTP status
func New(code int, msg string, status int) *Error {
	return &Error{Code: code, Msg: msg, Status: status}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code:   e.Code,
		Msg:    fmt.Sprintf("%s: %v", e.Msg, err),
		Status: e.Status,
	}
}

// WithMsg returns a copy of e carrying a more specific message
func (e *Error) WithMsg(msg string) *Error {
	return &Error{Code: e.Code, Msg: msg, Status: e.Status}
}

// Is matches errors by code so wrapped copies compare equal to their origin
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// From extracts an *Error from err, falling back to ErrInternalServer
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternalServer
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success", http.StatusOK)

	// Common errors (1xxx)
	ErrValidation     = New(1001, "invalid parameter", http.StatusBadRequest)
	ErrInternalServer = New(1002, "internal server error", http.StatusInternalServerError)
	ErrUnauthorized   = New(1003, "unauthorized", http.StatusUnauthorized)
	ErrForbidden      = New(1004, "forbidden", http.StatusForbidden)
	ErrNotFound       = New(1005, "not found", http.StatusNotFound)
	ErrRateLimited    = New(1006, "too many requests", http.StatusTooManyRequests)

	// Auth errors (2xxx)
	ErrTokenInvalid = New(2001, "token invalid", http.StatusUnauthorized)
	ErrTokenExpired = New(2002, "token expired", http.StatusUnauthorized)
	ErrTokenMissing = New(2003, "token missing", http.StatusUnauthorized)
	ErrTokenRevoked = New(2004, "token revoked", http.StatusUnauthorized)

	// Conversation errors (3xxx)
	ErrConvNotFound   = New(3001, "conversation not found", http.StatusNotFound)
	ErrNotParticipant = New(3003, "not a conversation participant", http.StatusForbidden)
	ErrPostNotAllowed = New(3004, "posting is not allowed in this conversation", http.StatusForbidden)
	ErrSelfChat       = New(3005, "cannot start a direct conversation with yourself", http.StatusBadRequest)

	// Message errors (4xxx)
	ErrContentEmpty   = New(4001, "message content is empty", http.StatusBadRequest)
	ErrContentTooLong = New(4002, "message content is too long", http.StatusBadRequest)
	ErrSendFailed     = New(4005, "message send failed", http.StatusInternalServerError)
	ErrPullFailed     = New(4006, "message pull failed", http.StatusInternalServerError)

	// Upstream errors (5xxx), absorbed by callers and only logged
	ErrUpstreamUnavailable = New(5001, "upstream unavailable", http.StatusBadGateway)

	// WebSocket errors (6xxx)
	ErrConnOverLimit   = New(6001, "connection over max limit", http.StatusServiceUnavailable)
	ErrInvalidProtocol = New(6003, "invalid protocol", http.StatusBadRequest)
)
