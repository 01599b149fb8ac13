package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/etruckzm/etruck-go/libs/clients"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// Unavailable covers network failures and timeouts.
	Unavailable ErrorKind = "gateway_unavailable"
	// Rejected means the provider declined the charge.
	Rejected ErrorKind = "gateway_rejected"
	// ProtocolError means the provider answered with something we cannot interpret.
	ProtocolError ErrorKind = "gateway_protocol_error"
)

// Error is a classified gateway failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s: %s", e.Provider, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Reason is the caller visible failure reason.
func (e *Error) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// NewUnavailable builds an Unavailable error.
func NewUnavailable(provider string, cause error) *Error {
	return &Error{Kind: Unavailable, Provider: provider, Cause: cause}
}

// NewRejected builds a Rejected error carrying the provider's message.
func NewRejected(provider, message string) *Error {
	return &Error{Kind: Rejected, Provider: provider, Message: message}
}

// Protocol builds a ProtocolError.
func Protocol(provider string, cause error) *Error {
	return &Error{Kind: ProtocolError, Provider: provider, Cause: cause}
}

func isKind(err error, kind ErrorKind) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == kind
}

// IsUnavailable reports whether err is an Unavailable gateway error.
func IsUnavailable(err error) bool { return isKind(err, Unavailable) }

// IsRejected reports whether err is a Rejected gateway error.
func IsRejected(err error) bool { return isKind(err, Rejected) }

// IsProtocol reports whether err is a ProtocolError gateway error.
func IsProtocol(err error) bool { return isKind(err, ProtocolError) }

// Classify turns an error from libs/clients into a gateway Error.
// Transport failures, timeouts and 5xx are Unavailable, other non 2xx are Rejected
// and anything else, such as an undecodable body, is a ProtocolError.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}

	if clients.IsTransportError(err) {
		return NewUnavailable(provider, err)
	}

	state, serr := clients.UnwrapHTTPState(err)
	if serr != nil {
		return Protocol(provider, err)
	}

	switch {
	case state.Status >= http.StatusInternalServerError || state.Status == http.StatusTooManyRequests:
		return NewUnavailable(provider, err)
	case state.Status >= http.StatusBadRequest:
		return NewRejected(provider, providerMessage(state))
	default:
		return Protocol(provider, err)
	}
}

// providerMessage digs the human readable message out of a provider error body.
func providerMessage(state *clients.HTTPState) string {
	data, ok := state.Body.(clients.RespErrData)
	if !ok {
		return http.StatusText(state.Status)
	}

	body, _ := data.Body.(string)

	var parsed struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		switch {
		case parsed.Message != "":
			return parsed.Message
		case parsed.Error.Message != "":
			return parsed.Error.Message
		case parsed.Reason != "":
			return parsed.Reason
		}
	}

	return http.StatusText(state.Status)
}
