package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/paid-agent/internal/agent/api/dto"
	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/cuongbtq/paid-agent/internal/agent/email"
	"github.com/cuongbtq/paid-agent/internal/agent/payment"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// Availability handles GET /availability
func (h *JobHandler) Availability(c *gin.Context) {
	c.JSON(http.StatusOK, dto.AvailabilityResponse{
		Status:          "available",
		AgentIdentifier: h.agentIdentifier,
		Message:         "The server is running smoothly.",
	})
}

// InputSchema handles GET /input_schema
func (h *JobHandler) InputSchema(c *gin.Context) {
	c.JSON(http.StatusOK, dto.InputSchemaResponse{InputData: email.InputFields()})
}

// StartJob handles POST /start_job.
// It validates input_data, opens a payment request and stores the job awaiting payment.
func (h *JobHandler) StartJob(c *gin.Context) {
	var req dto.StartJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.validator.Decode(req.InputData); err != nil {
		h.logger.Warn("Invalid input_data", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputHash, err := InputHash(req.InputData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.now()
	payBy := now.Add(h.payByWindow)
	submitBy := now.Add(h.submitResultAfter)

	ctx := c.Request.Context()
	pr, err := h.payments.CreatePaymentRequest(ctx, payment.RequestInput{
		AgentIdentifier:         h.agentIdentifier,
		InputHash:               inputHash,
		IdentifierFromPurchaser: req.IdentifierFromPurchaser,
		PayByTime:               payBy,
		SubmitResultTime:        submitBy,
		Amounts:                 h.price,
	})
	if err != nil {
		h.logger.Error("Failed to create payment request", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create payment request"})
		return
	}

	amounts, err := json.Marshal(pr.Amounts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode amounts"})
		return
	}

	job := &domain.Job{
		JobID:                     uuid.New().String(),
		IdentifierFromPurchaser:   req.IdentifierFromPurchaser,
		InputData:                 string(req.InputData),
		InputHash:                 inputHash,
		BlockchainIdentifier:      pr.BlockchainIdentifier,
		SellerVKey:                pr.SellerVKey,
		PayByTime:                 domain.NormalizeTimestamp(pr.PayByTime, payBy),
		SubmitResultTime:          domain.NormalizeTimestamp(pr.SubmitResultTime, submitBy),
		UnlockTime:                domain.NormalizeTimestamp(pr.UnlockTime, submitBy),
		ExternalDisputeUnlockTime: domain.NormalizeTimestamp(pr.ExternalDisputeUnlockTime, submitBy),
		Amounts:                   string(amounts),
		Status:                    domain.JobStatusAwaitingPayment,
		PaymentStatus:             domain.PaymentStatusPending,
		MaxRetries:                h.maxRetries,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	if err := h.store.CreateJob(ctx, job); err != nil {
		h.logger.Error("Failed to create job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}

	h.logger.Info("Job created, awaiting payment",
		slog.String("job_id", job.JobID),
		slog.String("blockchain_identifier", job.BlockchainIdentifier),
	)

	c.JSON(http.StatusOK, offer(job, pr.Amounts, h.agentIdentifier))
}

// Status handles GET /status?job_id=
func (h *JobHandler) Status(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id is required"})
		return
	}
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	resp := dto.StatusResponse{
		JobID:         job.JobID,
		Status:        job.Status,
		PaymentStatus: job.PaymentStatus,
		Message:       job.ErrorMessage,
	}
	if job.Status == domain.JobStatusCompleted {
		result := job.Result
		resp.Result = &result
	}

	c.JSON(http.StatusOK, resp)
}

// InputHash is the hex SHA-256 of the RFC 8785 canonical form of input_data
func InputHash(inputData []byte) (string, error) {
	canonical, err := jcs.Transform(inputData)
	if err != nil {
		return "", fmt.Errorf("canonicalize input_data: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func offer(job *domain.Job, amounts []payment.Amount, agentIdentifier string) dto.StartJobResponse {
	out := dto.StartJobResponse{
		Status:                    "success",
		JobID:                     job.JobID,
		BlockchainIdentifier:      job.BlockchainIdentifier,
		InputHash:                 job.InputHash,
		SellerVKey:                job.SellerVKey,
		AgentIdentifier:           agentIdentifier,
		UnlockTime:                job.UnlockTime,
		ExternalDisputeUnlockTime: job.ExternalDisputeUnlockTime,
		SubmitResultTime:          job.SubmitResultTime,
		PayByTime:                 job.PayByTime,
		IdentifierFromPurchaser:   job.IdentifierFromPurchaser,
		Amounts:                   make([]dto.AmountDTO, 0, len(amounts)),
	}
	for _, a := range amounts {
		out.Amounts = append(out.Amounts, dto.AmountDTO{Amount: a.Amount, Unit: a.Unit})
	}
	return out
}
