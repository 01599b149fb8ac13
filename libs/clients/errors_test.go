package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

func TestUnwrapHTTPState(t *testing.T) {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")

	body := RespErrData{
		ResponseHeaders: h,
		Body:            `{"status":"error","message":"Invalid phone number"}`,
	}

	type testCase struct {
		name  string
		given error
		exp   *HTTPState
	}

	herr := NewHTTPError(errors.New("bad request"), "/v3/payments", "response", http.StatusBadRequest, body)

	tests := []testCase{
		{
			name:  "provider_rejection",
			given: herr,
			exp:   &HTTPState{Status: http.StatusBadRequest, Path: "/v3/payments", Body: body},
		},

		{
			name:  "wrapped",
			given: fmt.Errorf("failed to initiate flutterwave payment: %w", herr),
			exp:   &HTTPState{Status: http.StatusBadRequest, Path: "/v3/payments", Body: body},
		},

		{
			name:  "no_response",
			given: errors.New("connection refused"),
		},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			actual, err := UnwrapHTTPState(tc.given)
			if tc.exp == nil {
				should.Nil(t, actual)
				should.ErrorIs(t, err, tc.given)
				return
			}

			must.NoError(t, err)
			should.Equal(t, tc.exp, actual)
		})
	}
}

func TestIsTransportError(t *testing.T) {
	type testCase struct {
		name  string
		given error
		exp   bool
	}

	tests := []testCase{
		{
			name:  "nil",
			given: nil,
		},

		{
			name:  "dial",
			given: fmt.Errorf("failed c.do: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}),
			exp:   true,
		},

		{
			name:  "deadline",
			given: fmt.Errorf("momo requesttopay: %w", context.DeadlineExceeded),
			exp:   true,
		},

		{
			name:  "server_error_response",
			given: NewHTTPError(context.DeadlineExceeded, "/collection/v1_0/requesttopay", "response", http.StatusServiceUnavailable, nil),
		},

		{
			name:  "plain",
			given: errors.New("unexpected end of JSON input"),
		},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			should.Equal(t, tc.exp, IsTransportError(tc.given))
		})
	}
}
