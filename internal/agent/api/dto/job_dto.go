package dto

import (
	"encoding/json"

	"github.com/cuongbtq/paid-agent/internal/agent/email"
)

type StartJobRequest struct {
	IdentifierFromPurchaser string          `json:"identifier_from_purchaser" binding:"required"`
	InputData               json.RawMessage `json:"input_data" binding:"required"`
}

type AmountDTO struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// StartJobResponse is the job offer a purchaser pays against
type StartJobResponse struct {
	Status                    string      `json:"status"`
	JobID                     string      `json:"job_id"`
	BlockchainIdentifier      string      `json:"blockchainIdentifier"`
	InputHash                 string      `json:"input_hash"`
	SellerVKey                string      `json:"sellerVKey"`
	AgentIdentifier           string      `json:"agentIdentifier"`
	UnlockTime                string      `json:"unlockTime"`
	ExternalDisputeUnlockTime string      `json:"externalDisputeUnlockTime"`
	SubmitResultTime          string      `json:"submitResultTime"`
	PayByTime                 string      `json:"payByTime"`
	IdentifierFromPurchaser   string      `json:"identifierFromPurchaser"`
	Amounts                   []AmountDTO `json:"amounts"`
}

type StatusResponse struct {
	JobID         string  `json:"job_id"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Result        *string `json:"result,omitempty"`
	Message       string  `json:"message,omitempty"`
}

type AvailabilityResponse struct {
	Status          string `json:"status"`
	AgentIdentifier string `json:"agentIdentifier"`
	Message         string `json:"message"`
}

type InputSchemaResponse struct {
	InputData []email.Field `json:"input_data"`
}
