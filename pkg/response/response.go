package response

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/coursechat/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Page wraps a paginated list
type Page struct {
	Items interface{} `json:"items"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: errcode.ErrSuccess.Code,
		Msg:  errcode.ErrSuccess.Msg,
		Data: data,
	})
}

// Created sends a 201 response
func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: errcode.ErrSuccess.Code,
		Msg:  errcode.ErrSuccess.Msg,
		Data: data,
	})
}

// Error sends an error response, mapping business errors to their HTTP status.
// Errors that are not business errors are logged and reported as a generic 500.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	e := errcode.From(err)
	if e == errcode.ErrInternalServer {
		log.CtxError(ctx, "unhandled error: path=%s, error=%v", string(c.Path()), err)
	}
	ErrorWithCode(ctx, c, e)
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, Response{
		Code: e.Code,
		Msg:  e.Msg,
	})
}

// RateLimited sends a 429 response with a Retry-After header
func RateLimited(ctx context.Context, c *app.RequestContext, retryAfterSeconds int) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	ErrorWithCode(ctx, c, errcode.ErrRateLimited.WithMsg(
		"too many messages, retry after "+strconv.Itoa(retryAfterSeconds)+"s"))
}
