package domain

// Job status values reported by the agent status endpoint
const (
	JobStatusAwaitingPayment = "awaiting_payment"
	JobStatusRunning         = "running"
	JobStatusCompleted       = "completed"
	JobStatusFailed          = "failed"
)

// PaymentTypeCardano identifies the on-chain payment rail expected by the payment service
const PaymentTypeCardano = "Web3CardanoV1"

// LovelacePerADA is the number of smallest units in one major unit
const LovelacePerADA = 1_000_000

// Stage names one gate of the purchase pipeline
type Stage string

const (
	StageConfig       Stage = "configuration"
	StageAvailability Stage = "availability"
	StageJobCreation  Stage = "job_creation"
	StagePayment      Stage = "payment"
	StageMonitoring   Stage = "monitoring"
)
