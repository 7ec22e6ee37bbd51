package forward

import (
	"errors"
	"net/http"
)

// BadRequestError reports an inbound body that cannot be forwarded.
type BadRequestError struct{ Msg string }

func (e *BadRequestError) Error() string { return e.Msg }

// StatusCode implements httpapi.HTTPError.
func (e *BadRequestError) StatusCode() int { return http.StatusBadRequest }

// IsBadRequest reports whether err is a *BadRequestError.
func IsBadRequest(err error) bool {
	var e *BadRequestError
	return errors.As(err, &e)
}

// GatewayTimeoutError reports that the child did not answer within the
// forward timeout. It maps to 408 to stay compatible with existing clients.
type GatewayTimeoutError struct{ Err error }

func (e *GatewayTimeoutError) Error() string { return "request to llama.cpp server timed out" }

func (e *GatewayTimeoutError) Unwrap() error { return e.Err }

// StatusCode implements httpapi.HTTPError.
func (e *GatewayTimeoutError) StatusCode() int { return http.StatusRequestTimeout }

// IsGatewayTimeout reports whether err is a *GatewayTimeoutError.
func IsGatewayTimeout(err error) bool {
	var e *GatewayTimeoutError
	return errors.As(err, &e)
}

// UpstreamError reports any other transport failure talking to the child.
type UpstreamError struct{ Err error }

func (e *UpstreamError) Error() string {
	return "error communicating with llama.cpp server: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StatusCode implements httpapi.HTTPError.
func (e *UpstreamError) StatusCode() int { return http.StatusInternalServerError }

// IsUpstream reports whether err is an *UpstreamError.
func IsUpstream(err error) bool {
	var e *UpstreamError
	return errors.As(err, &e)
}
