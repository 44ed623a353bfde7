package domain

import (
	"encoding/json"
	"time"
)

// Job is one paid unit of work held by the agent
type Job struct {
	JobID                     string     `db:"job_id"`
	IdentifierFromPurchaser   string     `db:"identifier_from_purchaser"`
	InputData                 string     `db:"input_data"` // JSON object
	InputHash                 string     `db:"input_hash"`
	BlockchainIdentifier      string     `db:"blockchain_identifier"`
	SellerVKey                string     `db:"seller_vkey"`
	UnlockTime                string     `db:"unlock_time"`
	ExternalDisputeUnlockTime string     `db:"external_dispute_unlock_time"`
	SubmitResultTime          string     `db:"submit_result_time"`
	PayByTime                 string     `db:"pay_by_time"`
	Amounts                   string     `db:"amounts"` // JSON array of {amount, unit}
	Status                    string     `db:"status"`
	PaymentStatus             string     `db:"payment_status"`
	Result                    string     `db:"result"`
	ErrorMessage              string     `db:"error_message"`
	WorkerID                  string     `db:"worker_id"`
	RetryCount                int        `db:"retry_count"`
	MaxRetries                int        `db:"max_retries"`
	CreatedAt                 time.Time  `db:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at"`
	StartedAt                 *time.Time `db:"started_at"`
	CompletedAt               *time.Time `db:"completed_at"`
}

// Amount is one requested payment amount
type Amount struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// DecodeAmounts parses the stored amounts list
func (j *Job) DecodeAmounts() ([]Amount, error) {
	if j.Amounts == "" {
		return nil, nil
	}
	var amounts []Amount
	if err := json.Unmarshal([]byte(j.Amounts), &amounts); err != nil {
		return nil, err
	}
	return amounts, nil
}

// Terminal reports whether the job will not change status again
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobMessage represents a queued job notification
type JobMessage struct {
	JobID string `json:"job_id"`
}
