package domain

// Job status constants
const (
	JobStatusAwaitingPayment = "awaiting_payment"
	JobStatusRunning         = "running"
	JobStatusCompleted       = "completed"
	JobStatusFailed          = "failed"
)

// Payment status constants, as reported on the status endpoint
const (
	PaymentStatusPending         = "pending"
	PaymentStatusLocked          = "locked"
	PaymentStatusResultSubmitted = "result_submitted"
)

// OnChainStateFundsLocked is the payment service state for a paid request
const OnChainStateFundsLocked = "FundsLocked"

// PaymentTypeCardano is the only payment type the agent offers
const PaymentTypeCardano = "Web3CardanoV1"
