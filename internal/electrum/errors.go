package electrum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/nao1215/electrumscan/internal/model"
)

var (
	// ErrConnectionFailed is returned when neither TLS nor the plaintext
	// fallback could be established.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrEmptyResponse is returned when the server closed or answered with an empty line.
	ErrEmptyResponse = errors.New("empty response")
	// ErrTrailingData is returned when a response line holds more than one JSON value.
	ErrTrailingData = errors.New("trailing data after response")
	// ErrResponseTooLarge is returned when a response line exceeds the size cap.
	ErrResponseTooLarge = errors.New("response line too large")
	// ErrNoCertificate is returned when a TLS handshake produced no peer certificate.
	ErrNoCertificate = errors.New("no peer certificate")
)

// Phase identifies where in an exchange an error happened.
type Phase string

// Exchange phases.
const (
	PhaseDial   Phase = "dial"
	PhaseWrite  Phase = "write"
	PhaseRead   Phase = "read"
	PhaseDecode Phase = "decode"
	PhaseRPC    Phase = "rpc"
)

// Outcome classifies the result of an exchange.
type Outcome int

// Outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeRefused
	OutcomeMalformed
	OutcomeRPCError
	OutcomeOther
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeRefused:
		return "refused"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeRPCError:
		return "rpc_error"
	default:
		return "other"
	}
}

// CallError describes a failed dial or exchange.
type CallError struct {
	Phase   Phase
	Outcome Outcome
	Err     error
}

// Error implements error.
func (e *CallError) Error() string {
	return fmt.Sprintf("electrum %s (%s): %v", e.Phase, e.Outcome, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

func newCallError(phase Phase, err error) *CallError {
	return &CallError{Phase: phase, Outcome: classify(err), Err: err}
}

// classify maps a low-level error to an Outcome.
func classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return OutcomeRPCError
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrTrailingData) || errors.Is(err, ErrResponseTooLarge) {
		return OutcomeMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeRefused
	}
	if isJSONError(err) {
		return OutcomeMalformed
	}
	return OutcomeOther
}

func isJSONError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// OutcomeOf returns the outcome carried by err.
func OutcomeOf(err error) Outcome {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Outcome
	}
	return classify(err)
}

// Sentinel renders err as the short string recorded in artifacts:
// "ok", "connection_failed", "timeout", "invalid_json", "rpc_error: <message>"
// or the error text for anything else.
func Sentinel(err error) string {
	if err == nil {
		return model.ProbeOK
	}
	var callErr *CallError
	if !errors.As(err, &callErr) {
		return err.Error()
	}
	switch {
	case callErr.Phase == PhaseDial:
		return "connection_failed"
	case callErr.Outcome == OutcomeTimeout:
		return "timeout"
	case callErr.Outcome == OutcomeMalformed:
		return "invalid_json"
	case callErr.Outcome == OutcomeRPCError:
		var rpcErr *RPCError
		if errors.As(callErr.Err, &rpcErr) {
			return "rpc_error: " + rpcErr.Message
		}
		return "rpc_error"
	default:
		return callErr.Err.Error()
	}
}
