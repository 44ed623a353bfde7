package purchase

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/job_offer.schema.json
var jobOfferSchema string

const jobOfferSchemaURL = "https://paid-agent.local/schemas/job_offer.schema.json"

// requiredOfferFields mirrors the schema's required list, in report order
var requiredOfferFields = []string{
	"job_id",
	"blockchainIdentifier",
	"input_hash",
	"sellerVKey",
	"agentIdentifier",
	"unlockTime",
	"externalDisputeUnlockTime",
	"submitResultTime",
	"payByTime",
	"identifierFromPurchaser",
	"amounts",
}

func compileJobOfferSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(jobOfferSchemaURL, strings.NewReader(jobOfferSchema)); err != nil {
		return nil, fmt.Errorf("job offer schema load failed: %w", err)
	}
	compiled, err := c.Compile(jobOfferSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("job offer schema compile failed: %w", err)
	}
	return compiled, nil
}

// decodeJobOffer validates a start_job response body and decodes it.
// Every failure is a *domain.ContractViolationError.
func decodeJobOffer(schema *jsonschema.Schema, body []byte) (*domain.JobOffer, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &domain.ContractViolationError{Detail: fmt.Sprintf("response is not JSON: %v", err)}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &domain.ContractViolationError{Detail: "response is not a JSON object"}
	}

	var missing []string
	for _, field := range requiredOfferFields {
		if v, present := obj[field]; !present || v == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ContractViolationError{Fields: missing, Detail: "missing required fields"}
	}

	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &domain.ContractViolationError{Fields: invalidLocations(ve), Detail: ve.Error()}
		}
		return nil, &domain.ContractViolationError{Detail: err.Error()}
	}

	var offer domain.JobOffer
	if err := json.Unmarshal(body, &offer); err != nil {
		return nil, &domain.ContractViolationError{Detail: fmt.Sprintf("decode response: %v", err)}
	}

	return &offer, nil
}

// invalidLocations collects the instance paths of the leaf validation errors
func invalidLocations(ve *jsonschema.ValidationError) []string {
	seen := make(map[string]struct{})
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc != "" {
				seen[loc] = struct{}{}
			}
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)

	fields := make([]string, 0, len(seen))
	for loc := range seen {
		fields = append(fields, loc)
	}
	sort.Strings(fields)
	return fields
}
