package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Draft is a subject and body pair
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Enhancer rewrites a draft; callers keep the original on error
type Enhancer interface {
	Enhance(ctx context.Context, d Draft) (Draft, error)
}

var promptTemplate = template.Must(template.New("prompt").Parse(
	`You write short, clear and professional emails.

The KEYPOINTS describe what the email has to achieve. The EXISTING SUBJECT and
EXISTING BODY are an earlier draft that may be weak or empty. Rewrite them:
do not copy the draft wording, keep the facts that matter.

Produce a specific subject line of at most 70 characters and a plain text body
of three to six short paragraphs with a call to action when it fits. No
markdown, no lists, no code.

Reply with a single JSON object with exactly two string keys, "subject" and
"body", and nothing else.

KEYPOINTS:
{{.Keypoints}}

EXISTING SUBJECT:
{{.Subject}}

EXISTING BODY:
{{.Body}}
`))

// GeminiConfig configures the Gemini generateContent client
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// GeminiEnhancer rewrites drafts with a Gemini model
type GeminiEnhancer struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
	schema      *jsonschema.Schema
}

// NewGeminiEnhancer creates the enhancer; an API key is required
func NewGeminiEnhancer(cfg GeminiConfig) (*GeminiEnhancer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	schema, err := compile(draftSchemaURL, draftSchemaJSON)
	if err != nil {
		return nil, err
	}

	e := &GeminiEnhancer{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
		schema:      schema,
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.timeout <= 0 {
		e.timeout = 20 * time.Second
	}
	return e, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Enhance asks the model for a better draft. Empty fields in the reply keep the original value.
func (e *GeminiEnhancer) Enhance(ctx context.Context, d Draft) (Draft, error) {
	var prompt bytes.Buffer
	err := promptTemplate.Execute(&prompt, map[string]string{
		"Keypoints": d.Subject + "\n" + d.Body,
		"Subject":   d.Subject,
		"Body":      d.Body,
	})
	if err != nil {
		return d, fmt.Errorf("render prompt: %w", err)
	}

	text, err := e.generate(ctx, prompt.String())
	if err != nil {
		return d, err
	}

	reply, err := e.parseReply(text)
	if err != nil {
		return d, err
	}

	out := Draft{
		Subject: strings.TrimSpace(reply.Subject),
		Body:    strings.TrimSpace(reply.Body),
	}
	if out.Subject == "" {
		out.Subject = strings.TrimSpace(d.Subject)
	}
	if out.Body == "" {
		out.Body = strings.TrimSpace(d.Body)
	}
	return out, nil
}

func (e *GeminiEnhancer) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      e.temperature,
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		e.baseURL, url.PathEscape(e.model), url.QueryEscape(e.apiKey))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// the url carries the key; report only the cause
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response has no candidates")
	}

	var text strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}

// parseReply accepts either a bare JSON object or text wrapping one
func (e *GeminiEnhancer) parseReply(text string) (Draft, error) {
	raw := strings.TrimSpace(text)
	if !json.Valid([]byte(raw)) {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return Draft{}, errors.New("reply contains no JSON object")
		}
		raw = raw[start : end+1]
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Draft{}, fmt.Errorf("reply is not JSON: %w", err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return Draft{}, fmt.Errorf("reply has unexpected shape: %s", describe(err))
	}

	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Draft{}, fmt.Errorf("decode reply: %w", err)
	}
	return d, nil
}
