package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ComputeConfig holds agent client configuration
type ComputeConfig struct {
	BaseURL       string
	HTTPClient    *http.Client
	Logger        *slog.Logger
	HealthTimeout time.Duration
	CreateTimeout time.Duration
	StatusTimeout time.Duration
}

// ComputeClient talks to the agent (compute service)
type ComputeClient struct {
	baseURL       string
	httpClient    *http.Client
	logger        *slog.Logger
	healthTimeout time.Duration
	createTimeout time.Duration
	statusTimeout time.Duration
	offerSchema   *jsonschema.Schema
}

// NewComputeClient creates a new agent client
func NewComputeClient(cfg *ComputeConfig) (*ComputeClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("agent base url is required")
	}

	schema, err := compileJobOfferSchema()
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ComputeClient{
		baseURL:       cfg.BaseURL,
		httpClient:    httpClient,
		logger:        logger,
		healthTimeout: orDefault(cfg.HealthTimeout, 10*time.Second),
		createTimeout: orDefault(cfg.CreateTimeout, 30*time.Second),
		statusTimeout: orDefault(cfg.StatusTimeout, 10*time.Second),
		offerSchema:   schema,
	}, nil
}

// CheckAvailability verifies the agent is reachable before anything is paid
func (c *ComputeClient) CheckAvailability(ctx context.Context) error {
	target := joinURL(c.baseURL, "/availability")

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build availability request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.StageError{
			Stage:  domain.StageAvailability,
			Target: target,
			Err:    fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return &domain.StageError{
			Stage:  domain.StageAvailability,
			Target: target,
			Err:    fmt.Errorf("%w: read availability response: %v", domain.ErrServiceUnavailable, err),
		}
	}

	if !isSuccess(resp.StatusCode) {
		return &domain.StageError{
			Stage:  domain.StageAvailability,
			Target: target,
			Body:   string(body),
			Err:    fmt.Errorf("%w: status %d", domain.ErrServiceUnavailable, resp.StatusCode),
		}
	}

	c.logger.Debug("Agent is available",
		slog.String("target", target),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}

// StartJob creates a job and returns the agent's payment offer for it
func (c *ComputeClient) StartJob(ctx context.Context, reqBody domain.StartJobRequest) (*domain.JobOffer, error) {
	target := joinURL(c.baseURL, "/start_job")

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode start_job request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.createTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build start_job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.StageError{
			Stage:  domain.StageJobCreation,
			Target: target,
			Err:    fmt.Errorf("send start_job request: %w", err),
		}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, &domain.StageError{
			Stage:  domain.StageJobCreation,
			Target: target,
			Err:    fmt.Errorf("read start_job response: %w", err),
		}
	}

	if !isSuccess(resp.StatusCode) {
		return nil, &domain.StageError{
			Stage:  domain.StageJobCreation,
			Target: target,
			Body:   string(body),
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	offer, err := decodeJobOffer(c.offerSchema, body)
	if err != nil {
		return nil, &domain.StageError{
			Stage:  domain.StageJobCreation,
			Target: target,
			Body:   string(body),
			Err:    err,
		}
	}

	c.logger.Debug("Job offer received",
		slog.String("job_id", offer.JobID),
		slog.String("blockchain_identifier", offer.BlockchainIdentifier),
	)

	return offer, nil
}

// JobStatus fetches one status snapshot for a job
func (c *ComputeClient) JobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	target := joinURL(c.baseURL, "/status") + "?" + url.Values{"job_id": {jobID}}.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var status domain.JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if status.Status == "" {
		return nil, fmt.Errorf("status response has no status: %s", string(body))
	}
	status.Raw = body

	return &status, nil
}

// CloseIdleConnections releases pooled connections
func (c *ComputeClient) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
