package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCredential is returned when no purchaser API key is configured
	ErrMissingCredential = errors.New("purchaser credential not configured")

	// ErrServiceUnavailable is returned when the agent health check fails
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrContractViolation is returned when the job-creation response is missing or has malformed fields
	ErrContractViolation = errors.New("job creation response violates contract")

	// ErrPaymentRejected is returned when the payment service answers with an error response
	ErrPaymentRejected = errors.New("payment rejected")

	// ErrPaymentTransport is returned when the payment request could not be completed at transport level
	ErrPaymentTransport = errors.New("payment request did not complete")

	// ErrInterrupted is returned when the run was canceled from outside
	ErrInterrupted = errors.New("run interrupted")
)

// StageError carries the diagnostic context of a fatal pipeline failure
type StageError struct {
	Stage  Stage
	Target string // request URL
	Body   string // raw response body, if any
	Hint   string // short remediation hint
	Err    error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Stage)
	if e.Target != "" {
		fmt.Fprintf(&b, " (%s)", e.Target)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ContractViolationError lists the response fields that failed validation
type ContractViolationError struct {
	Fields []string
	Detail string
}

func (e *ContractViolationError) Error() string {
	msg := ErrContractViolation.Error()
	if len(e.Fields) > 0 {
		msg += ": invalid fields " + strings.Join(e.Fields, ", ")
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ContractViolationError) Unwrap() error {
	return ErrContractViolation
}

// PaymentRejectedError is a structured rejection from the payment service
type PaymentRejectedError struct {
	StatusCode int
	Body       string
}

func (e *PaymentRejectedError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", ErrPaymentRejected, e.StatusCode, e.Body)
}

func (e *PaymentRejectedError) Unwrap() error {
	return ErrPaymentRejected
}

// HintFor returns the remediation hint for a stage failure
func HintFor(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "set PURCHASER_API_KEY after registering a purchasing wallet"
	case errors.Is(err, ErrServiceUnavailable):
		return "make sure the agent service is running and AGENT_API_URL is correct"
	case errors.Is(err, ErrContractViolation):
		return "the agent and this client disagree on the job contract; check both versions"
	case errors.Is(err, ErrPaymentRejected):
		return "check wallet balance, purchaser wallet registration and the API key; do not resubmit blindly"
	case errors.Is(err, ErrPaymentTransport):
		return "verify out-of-band whether the payment was submitted before retrying"
	default:
		return ""
	}
}
