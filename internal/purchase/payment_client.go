package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
)

// PaymentConfig holds purchaser-side payment service configuration
type PaymentConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Timeout    time.Duration
}

// PaymentClient submits purchases to the payment service
type PaymentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// NewPaymentClient creates a payment client. A missing API key is
// domain.ErrMissingCredential so no request can ever go out without one.
func NewPaymentClient(cfg *PaymentConfig) (*PaymentClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.ErrMissingCredential
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("payment service base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PaymentClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
		timeout:    orDefault(cfg.Timeout, 60*time.Second),
	}, nil
}

type purchaseResponse struct {
	Data struct {
		TxHash          string `json:"txHash"`
		TransactionHash string `json:"transactionHash"`
	} `json:"data"`
}

// Purchase submits the descriptor exactly once. It is never retried here:
// a purchase is not idempotent.
func (p *PaymentClient) Purchase(ctx context.Context, desc domain.PaymentDescriptor) (*domain.PaymentReceipt, error) {
	target := joinURL(p.baseURL, "/purchase")

	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("encode purchase request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build purchase request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &domain.StageError{
			Stage:  domain.StagePayment,
			Target: target,
			Err:    fmt.Errorf("%w: %v", domain.ErrPaymentTransport, err),
		}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &domain.StageError{
			Stage:  domain.StagePayment,
			Target: target,
			Err:    fmt.Errorf("%w: read response: %v", domain.ErrPaymentTransport, err),
		}
	}

	if !isSuccess(resp.StatusCode) {
		return nil, &domain.StageError{
			Stage:  domain.StagePayment,
			Target: target,
			Body:   string(body),
			Err:    &domain.PaymentRejectedError{StatusCode: resp.StatusCode, Body: string(body)},
		}
	}

	receipt := &domain.PaymentReceipt{Raw: body}

	var parsed purchaseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		p.logger.Warn("Purchase accepted but response could not be decoded",
			slog.String("error", err.Error()),
			slog.String("body", string(body)),
		)
		return receipt, nil
	}

	receipt.TxHash = parsed.Data.TxHash
	if receipt.TxHash == "" {
		receipt.TxHash = parsed.Data.TransactionHash
	}

	if receipt.TxHash == "" {
		p.logger.Info("Purchase accepted, transaction hash not reported yet",
			slog.String("blockchain_identifier", desc.BlockchainIdentifier),
		)
	}

	return receipt, nil
}

// CloseIdleConnections releases pooled connections
func (p *PaymentClient) CloseIdleConnections() {
	p.httpClient.CloseIdleConnections()
}
