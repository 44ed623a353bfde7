package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// StartJobRequest is the body sent to the agent's start_job endpoint
type StartJobRequest struct {
	IdentifierFromPurchaser string          `json:"identifier_from_purchaser"`
	InputData               json.RawMessage `json:"input_data"`
}

// JobHandle identifies one unit of remote work
type JobHandle struct {
	JobID                string
	BlockchainIdentifier string
}

// Amount is one entry of the payment amounts list, kept as received
type Amount struct {
	Amount json.RawMessage `json:"amount"`
	Unit   json.RawMessage `json:"unit,omitempty"`
}

// Value returns the amount literal without JSON quoting
func (a Amount) Value() string {
	return unquote(a.Amount)
}

// JobOffer is the agent's answer to a job creation request
type JobOffer struct {
	JobID                     string          `json:"job_id"`
	BlockchainIdentifier      string          `json:"blockchainIdentifier"`
	InputHash                 string          `json:"input_hash"`
	SellerVKey                string          `json:"sellerVKey"`
	AgentIdentifier           string          `json:"agentIdentifier"`
	UnlockTime                json.RawMessage `json:"unlockTime"`
	ExternalDisputeUnlockTime json.RawMessage `json:"externalDisputeUnlockTime"`
	SubmitResultTime          json.RawMessage `json:"submitResultTime"`
	PayByTime                 json.RawMessage `json:"payByTime"`
	IdentifierFromPurchaser   string          `json:"identifierFromPurchaser"`
	Amounts                   []Amount        `json:"amounts"`
}

// Handle returns the immutable job handle
func (o *JobOffer) Handle() JobHandle {
	return JobHandle{
		JobID:                o.JobID,
		BlockchainIdentifier: o.BlockchainIdentifier,
	}
}

// Descriptor builds the payment descriptor for the given network.
// All offer fields are copied as-is.
func (o *JobOffer) Descriptor(network string) PaymentDescriptor {
	amounts := make([]Amount, len(o.Amounts))
	copy(amounts, o.Amounts)

	return PaymentDescriptor{
		BlockchainIdentifier:      o.BlockchainIdentifier,
		Network:                   network,
		InputHash:                 o.InputHash,
		SellerVkey:                o.SellerVKey,
		AgentIdentifier:           o.AgentIdentifier,
		PaymentType:               PaymentTypeCardano,
		UnlockTime:                o.UnlockTime,
		ExternalDisputeUnlockTime: o.ExternalDisputeUnlockTime,
		SubmitResultTime:          o.SubmitResultTime,
		PayByTime:                 o.PayByTime,
		IdentifierFromPurchaser:   o.IdentifierFromPurchaser,
		Amounts:                   amounts,
	}
}

// PaymentDescriptor is the purchase intent forwarded to the payment service.
// Field order is the wire order.
type PaymentDescriptor struct {
	BlockchainIdentifier      string          `json:"blockchainIdentifier"`
	Network                   string          `json:"network"`
	InputHash                 string          `json:"inputHash"`
	SellerVkey                string          `json:"sellerVkey"`
	AgentIdentifier           string          `json:"agentIdentifier"`
	PaymentType               string          `json:"paymentType"`
	UnlockTime                json.RawMessage `json:"unlockTime"`
	ExternalDisputeUnlockTime json.RawMessage `json:"externalDisputeUnlockTime"`
	SubmitResultTime          json.RawMessage `json:"submitResultTime"`
	PayByTime                 json.RawMessage `json:"payByTime"`
	IdentifierFromPurchaser   string          `json:"identifierFromPurchaser"`
	Amounts                   []Amount        `json:"amounts"`
}

// PaymentReceipt is what the payment service reported for a submitted purchase
type PaymentReceipt struct {
	TxHash string          // empty when the service has not reported it yet
	Raw    json.RawMessage // full response body
}

// JobStatus is one snapshot of the agent status endpoint
type JobStatus struct {
	JobID         string          `json:"job_id,omitempty"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Result        json.RawMessage `json:"result,omitempty"`
	Message       string          `json:"message,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// HasResult reports whether a non-null result was returned
func (s *JobStatus) HasResult() bool {
	trimmed := bytes.TrimSpace(s.Result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ResultText returns the result as display text
func (s *JobStatus) ResultText() string {
	if !s.HasResult() {
		return ""
	}
	return unquote(s.Result)
}

// Outcome is the terminal state of a monitoring session
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Transition is one observed change of the job status
type Transition struct {
	Elapsed       time.Duration
	JobStatus     string
	PaymentStatus string
}

// unquote returns the string content of a JSON string literal, or the literal itself
func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
