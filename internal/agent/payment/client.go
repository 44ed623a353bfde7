package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds seller-side payment service configuration
type Config struct {
	BaseURL    string
	APIKey     string
	Network    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Timeout    time.Duration
}

// Client registers payment requests and reports results to the payment service
type Client struct {
	baseURL    string
	apiKey     string
	network    string
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// NewClient creates a seller payment client
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("payment service base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("payment service api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		network:    cfg.Network,
		httpClient: httpClient,
		logger:     logger,
		timeout:    timeout,
	}, nil
}

// Amount is one requested fund entry
type Amount struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// RequestInput describes the payment request to open for a new job
type RequestInput struct {
	AgentIdentifier         string
	InputHash               string
	IdentifierFromPurchaser string
	PayByTime               time.Time
	SubmitResultTime        time.Time
	Amounts                 []Amount
}

// Request is the opened payment request as reported by the payment service.
// Time fields are kept as the service's literal values.
type Request struct {
	BlockchainIdentifier      string
	SellerVKey                string
	InputHash                 string
	UnlockTime                string
	ExternalDisputeUnlockTime string
	SubmitResultTime          string
	PayByTime                 string
	Amounts                   []Amount
}

type createPaymentBody struct {
	AgentIdentifier         string   `json:"agentIdentifier"`
	Network                 string   `json:"network"`
	InputHash               string   `json:"inputHash"`
	PayByTime               string   `json:"payByTime"`
	SubmitResultTime        string   `json:"submitResultTime"`
	IdentifierFromPurchaser string   `json:"identifierFromPurchaser"`
	PaymentType             string   `json:"paymentType"`
	RequestedFunds          []Amount `json:"RequestedFunds,omitempty"`
}

type createPaymentResponse struct {
	Data struct {
		BlockchainIdentifier      string          `json:"blockchainIdentifier"`
		InputHash                 string          `json:"inputHash"`
		PayByTime                 json.RawMessage `json:"payByTime"`
		SubmitResultTime          json.RawMessage `json:"submitResultTime"`
		UnlockTime                json.RawMessage `json:"unlockTime"`
		ExternalDisputeUnlockTime json.RawMessage `json:"externalDisputeUnlockTime"`
		RequestedFunds            []Amount        `json:"RequestedFunds"`
		SmartContractWallet       struct {
			WalletVkey string `json:"walletVkey"`
		} `json:"SmartContractWallet"`
	} `json:"data"`
}

// CreatePaymentRequest opens a payment request the purchaser can pay into
func (c *Client) CreatePaymentRequest(ctx context.Context, in RequestInput) (*Request, error) {
	body := createPaymentBody{
		AgentIdentifier:         in.AgentIdentifier,
		Network:                 c.network,
		InputHash:               in.InputHash,
		PayByTime:               in.PayByTime.UTC().Format(time.RFC3339),
		SubmitResultTime:        in.SubmitResultTime.UTC().Format(time.RFC3339),
		IdentifierFromPurchaser: in.IdentifierFromPurchaser,
		PaymentType:             "Web3CardanoV1",
		RequestedFunds:          in.Amounts,
	}

	var resp createPaymentResponse
	if err := c.post(ctx, "/payment", body, &resp); err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}

	d := resp.Data
	if d.BlockchainIdentifier == "" {
		return nil, fmt.Errorf("create payment request: response has no blockchainIdentifier")
	}

	req := &Request{
		BlockchainIdentifier:      d.BlockchainIdentifier,
		SellerVKey:                d.SmartContractWallet.WalletVkey,
		InputHash:                 d.InputHash,
		UnlockTime:                literal(d.UnlockTime),
		ExternalDisputeUnlockTime: literal(d.ExternalDisputeUnlockTime),
		SubmitResultTime:          literal(d.SubmitResultTime),
		PayByTime:                 literal(d.PayByTime),
		Amounts:                   d.RequestedFunds,
	}
	if req.InputHash == "" {
		req.InputHash = in.InputHash
	}
	if len(req.Amounts) == 0 {
		req.Amounts = in.Amounts
	}

	c.logger.Info("Payment request created",
		slog.String("blockchain_identifier", req.BlockchainIdentifier),
		slog.String("identifier_from_purchaser", in.IdentifierFromPurchaser),
	)

	return req, nil
}

type resolveBody struct {
	BlockchainIdentifier string `json:"blockchainIdentifier"`
	Network              string `json:"network"`
	IncludeHistory       string `json:"includeHistory"`
}

type resolveResponse struct {
	Data struct {
		OnChainState *string `json:"onChainState"`
	} `json:"data"`
}

// OnChainState returns the payment request's on-chain state, "" if none yet
func (c *Client) OnChainState(ctx context.Context, blockchainIdentifier string) (string, error) {
	var resp resolveResponse
	err := c.post(ctx, "/payment/resolve-blockchain-identifier", resolveBody{
		BlockchainIdentifier: blockchainIdentifier,
		Network:              c.network,
		IncludeHistory:       "false",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("resolve payment state: %w", err)
	}

	if resp.Data.OnChainState == nil {
		return "", nil
	}
	return *resp.Data.OnChainState, nil
}

type submitResultBody struct {
	Network              string `json:"network"`
	BlockchainIdentifier string `json:"blockchainIdentifier"`
	SubmitResultHash     string `json:"submitResultHash"`
}

// SubmitResult reports the hash of a job's result, which releases the payment
func (c *Client) SubmitResult(ctx context.Context, blockchainIdentifier, result string) error {
	err := c.post(ctx, "/payment/submit-result", submitResultBody{
		Network:              c.network,
		BlockchainIdentifier: blockchainIdentifier,
		SubmitResultHash:     ResultHash(result),
	}, nil)
	if err != nil {
		return fmt.Errorf("submit result: %w", err)
	}

	c.logger.Info("Result submitted",
		slog.String("blockchain_identifier", blockchainIdentifier),
	)
	return nil
}

// ResultHash is the hex SHA-256 of a result text
func ResultHash(result string) string {
	sum := sha256.Sum256([]byte(result))
	return hex.EncodeToString(sum[:])
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payment service returned %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// literal renders a JSON scalar as text, unquoting strings
func literal(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}
