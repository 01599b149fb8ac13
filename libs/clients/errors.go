package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	errorutils "github.com/etruckzm/etruck-go/libs/errors"
)

var (
	// ErrUnableToDecode unable to decode body
	ErrUnableToDecode = "unable to decode response"
	// ErrProtocolError the error was within the data that went into the endpoint
	ErrProtocolError = "protocol error"
	// ErrUnableToEscapeURL the url could nto be escaped
	ErrUnableToEscapeURL = "unable to escape url"
	// ErrInvalidHost the host was invalid
	ErrInvalidHost = "invalid host"
	// ErrMalformedRequest the request was malformed
	ErrMalformedRequest = "malformed request"
	// ErrUnableToEncodeBody body could not be decoded
	ErrUnableToEncodeBody = "unable to encode body"
)

// HTTPState captures the state of the response to be read by lower fns in the stack
type HTTPState struct {
	Status int
	Path   string
	Body   interface{}
}

// NewHTTPError creates a new errors.ErrorBundle with an HTTPState wrapping the status, path and v.
func NewHTTPError(err error, path, message string, status int, v interface{}) error {
	return errorutils.New(err, message, HTTPState{
		Status: status,
		Path:   path,
		Body:   v,
	})
}

// UnwrapHTTPState pulls the HTTPState out of an error created by NewHTTPError
func UnwrapHTTPState(err error) (*HTTPState, error) {
	var eb *errorutils.ErrorBundle
	if errors.As(err, &eb) {
		if state, ok := eb.Data().(HTTPState); ok {
			return &state, nil
		}
	}
	return nil, fmt.Errorf("error unwrapping http state for error %w", err)
}

// IsTransportError reports whether err happened before any response was received,
// a dial failure, a reset connection or a timeout
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if _, herr := UnwrapHTTPState(err); herr == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
