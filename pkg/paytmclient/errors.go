package paytmclient

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayUnavailable marks transport failures and timeouts.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected marks responses in which the gateway declined the
	// request or answered with something that does not match the schema.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

// UnavailableError wraps the transport error of a failed attempt.
type UnavailableError struct {
	OrderID string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("paytm initiate %s: %v: %v", e.OrderID, ErrGatewayUnavailable, e.Err)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrGatewayUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// RejectedError carries the gateway's diagnostic for a declined initiation.
type RejectedError struct {
	OrderID  string
	Code     string
	Status   string
	Message  string
	Attempts int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("paytm initiate %s: %v: code=%s status=%s msg=%q", e.OrderID, ErrGatewayRejected, e.Code, e.Status, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrGatewayRejected
}

// ParseError reports a gateway response that failed strict schema parsing.
type ParseError struct {
	OrderID    string
	HTTPStatus int
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("paytm initiate %s: unparsable response (status %d): %v", e.OrderID, e.HTTPStatus, e.Err)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrGatewayRejected
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
