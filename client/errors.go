package client

import (
	"errors"
	"fmt"

	"matchable.io/sdk/v1/action"
	"matchable.io/sdk/v1/response"
)

var (
	ErrDisabled              = errors.New("matchable sdk is disabled")
	ErrClosed                = errors.New("matchable client is closed")
	ErrEndpointNotConfigured = errors.New("endpoint is not configured")
)

// TransportError means no reply was received: the request could not be built or sent,
// or the body could not be read
type TransportError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a reply outside of 2xx, the body is still available on Response
type StatusError struct {
	StatusCode int
	Response   *response.Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("matchable api replied with status code %d: %s", e.StatusCode, e.Response.Text())
}

// ParseError is a 2xx reply whose body isn't json, the raw text is still available on Response
type ParseError struct {
	Err      error
	Response *response.Response
}

func (e *ParseError) Error() string {
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// gated outcomes are dropped silently by the async api, the caller never hears back
func gated(err error) bool {
	return errors.Is(err, ErrDisabled) || errors.Is(err, action.ErrMissingType)
}
