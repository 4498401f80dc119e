package sdk

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	// Status is the HTTP status, 0 for socket errors
	Status int `json:"-"`
	// RetryAfter is the raw Retry-After header of rate limited calls
	RetryAfter string `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Is matches errors by code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// RetryAfterDuration parses RetryAfter, 0 when absent
func (e *Error) RetryAfterDuration() time.Duration {
	secs, err := strconv.Atoi(e.RetryAfter)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Error codes returned by the server
const (
	CodeSuccess = 0

	CodeValidation     = 1001
	CodeInternalServer = 1002
	CodeUnauthorized   = 1003
	CodeForbidden      = 1004
	CodeNotFound       = 1005
	CodeRateLimited    = 1006

	CodeTokenInvalid = 2001
	CodeTokenExpired = 2002
	CodeTokenMissing = 2003
	CodeTokenRevoked = 2004

	CodeConvNotFound   = 3001
	CodeConvInactive   = 3002
	CodeNotParticipant = 3003
	CodePostNotAllowed = 3004
	CodeSelfChat       = 3005

	CodeContentEmpty   = 4001
	CodeContentTooLong = 4002
	CodeSendFailed     = 4005
	CodePullFailed     = 4006

	CodeConnOverLimit   = 6001
	CodeInvalidProtocol = 6003
)

// Predefined errors, usable with errors.Is
var (
	ErrValidation     = NewError(CodeValidation, "invalid parameter")
	ErrInternalServer = NewError(CodeInternalServer, "internal server error")
	ErrUnauthorized   = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden      = NewError(CodeForbidden, "forbidden")
	ErrNotFound       = NewError(CodeNotFound, "not found")
	ErrRateLimited    = NewError(CodeRateLimited, "too many requests")

	ErrTokenInvalid = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired = NewError(CodeTokenExpired, "token expired")
	ErrTokenMissing = NewError(CodeTokenMissing, "token missing")
	ErrTokenRevoked = NewError(CodeTokenRevoked, "token revoked")

	ErrConvNotFound   = NewError(CodeConvNotFound, "conversation not found")
	ErrNotParticipant = NewError(CodeNotParticipant, "not a conversation participant")
	ErrPostNotAllowed = NewError(CodePostNotAllowed, "posting is not allowed in this conversation")
	ErrSelfChat       = NewError(CodeSelfChat, "cannot start a direct conversation with yourself")
)
