package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one plain text email ready for delivery
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers messages
type Sender interface {
	// Ready reports why the sender cannot deliver, or nil
	Ready() error
	Send(ctx context.Context, m Message) (messageID string, err error)
}

// DeliveryError is a failed delivery attempt
type DeliveryError struct {
	StatusCode int // 0 when the request never got a response
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("Error sending email: %v", e.Err)
	}
	return fmt.Sprintf("Brevo API error: (%d) %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Temporary reports whether trying again later may succeed
func (e *DeliveryError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// BrevoConfig configures transactional email delivery
type BrevoConfig struct {
	APIKey      string
	URL         string
	SenderEmail string
	SenderName  string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// BrevoSender delivers through the Brevo transactional email API
type BrevoSender struct {
	cfg        BrevoConfig
	httpClient *http.Client
}

// NewBrevoSender creates a sender. Missing credentials surface through Ready.
func NewBrevoSender(cfg BrevoConfig) *BrevoSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &BrevoSender{cfg: cfg, httpClient: client}
}

func (s *BrevoSender) Ready() error {
	if s.cfg.APIKey == "" {
		return errors.New("Brevo API key not configured (BREVO_API_KEY missing)")
	}
	if s.cfg.SenderEmail == "" {
		return errors.New("Sender email not configured (SENDER_EMAIL missing)")
	}
	return nil
}

type brevoAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

func (s *BrevoSender) Send(ctx context.Context, m Message) (string, error) {
	payload, err := json.Marshal(brevoRequest{
		Sender:      brevoAddress{Name: s.cfg.SenderName, Email: s.cfg.SenderEmail},
		To:          []brevoAddress{{Email: m.To}},
		Subject:     m.Subject,
		TextContent: m.Text,
	})
	if err != nil {
		return "", &DeliveryError{Err: fmt.Errorf("encode request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", &DeliveryError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &DeliveryError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out brevoResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &DeliveryError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("decode response: %w", err)}
	}
	return out.MessageID, nil
}
