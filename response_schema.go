package goask

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// askResponseSchema is the explicit shape of the remote answering endpoint's
// response. Every field is optional; the gateway applies documented defaults
// for absent ones. A body that violates the schema is rejected before
// decoding so a half-compatible endpoint never produces a garbled answer.
const askResponseSchema = `{
	"type": "object",
	"properties": {
		"answer": {"type": "string"},
		"conversation_id": {"type": "string"},
		"sources": {
			"type": "object",
			"additionalProperties": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"page": {"type": "integer", "minimum": 1},
						"relevance": {"type": "number"}
					},
					"required": ["page", "relevance"]
				}
			}
		}
	}
}`

// validateAskResponse checks a raw response body against askResponseSchema.
func validateAskResponse(body []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(askResponseSchema)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate response: %w", err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("response does not match expected schema: %s", strings.Join(details, "; "))
	}

	return nil
}
