package email

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	//go:embed schemas/input.schema.json
	inputSchemaJSON string

	//go:embed schemas/draft.schema.json
	draftSchemaJSON string
)

const (
	inputSchemaURL = "https://paid-agent.local/schemas/email_input.schema.json"
	draftSchemaURL = "https://paid-agent.local/schemas/email_draft.schema.json"
)

// Input is the input_data of one email job
type Input struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// Field describes one input field on the input_schema endpoint
type Field struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Name string    `json:"name"`
	Data FieldData `json:"data"`
}

// FieldData carries the display hints of a field
type FieldData struct {
	Placeholder string `json:"placeholder,omitempty"`
	Description string `json:"description,omitempty"`
}

// InputFields lists the fields a purchaser has to provide
func InputFields() []Field {
	return []Field{
		{
			ID: "recipient_email", Type: "string", Name: "Recipient Email",
			Data: FieldData{Placeholder: "user@example.com", Description: "Address the email is delivered to"},
		},
		{
			ID: "subject", Type: "string", Name: "Subject",
			Data: FieldData{Placeholder: "Test Email Subject", Description: "Subject line, improved before sending"},
		},
		{
			ID: "body", Type: "string", Name: "Body",
			Data: FieldData{Placeholder: "Email content", Description: "Plain text body, improved before sending"},
		},
	}
}

// Validator checks raw input_data against the input schema
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded input schema
func NewValidator() (*Validator, error) {
	schema, err := compile(inputSchemaURL, inputSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Validator{schema: schema}, nil
}

// Decode validates raw input_data and decodes it.
// Every failure wraps domain.ErrInvalidInput.
func (v *Validator) Decode(raw []byte) (Input, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Input{}, fmt.Errorf("%w: input_data is not JSON: %v", domain.ErrInvalidInput, err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return Input{}, fmt.Errorf("%w: %s", domain.ErrInvalidInput, describe(err))
	}

	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return Input{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return in, nil
}

func compile(url, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema %s load failed: %w", url, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s compile failed: %w", url, err)
	}
	return compiled, nil
}

// describe flattens a validation error into "location: message" pairs
func describe(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	var parts []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				loc = "input_data"
			}
			parts = append(parts, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(parts, "; ")
}
