package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/cycleroute/internal/domain/planner"
	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

// HTTPError is the transport view of a failure: a status plus the
// {"error":{"code","message"}} envelope.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewHTTPError builds an error that is not tied to a planner code.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// Planner codes that may reach clients, with their statuses. Anything else
// is reported as internal_error without its message.
var statusByCode = map[string]int{
	planner.CodeInvalidInput:            http.StatusBadRequest,
	planner.CodeNotFound:                http.StatusNotFound,
	planner.CodeConstraintUnsatisfiable: http.StatusUnprocessableEntity,
	planner.CodeUpstreamUnavailable:     http.StatusBadGateway,
	planner.CodeEngineFailure:           http.StatusBadGateway,
	planner.CodeStorageFailure:          http.StatusInternalServerError,
}

// NewHTTPErrorFromApp maps a planner AppError onto the envelope, keeping the
// domain code and its client-safe message.
func NewHTTPErrorFromApp(err error) *HTTPError {
	code := apperrors.CodeOf(err, "")
	status, ok := statusByCode[code]
	if !ok {
		return NewHTTPError(http.StatusInternalServerError, "internal_error", "something went wrong", err)
	}
	return NewHTTPError(status, code, apperrors.MessageOf(err), err)
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return NewHTTPErrorFromApp(err)
}

// abortWithError records err for errorHandlingMiddleware. Planner errors may
// be passed as they are.
func abortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
