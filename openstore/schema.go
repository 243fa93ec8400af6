package openstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

func mustMarshalSchema(schema map[string]interface{}) []byte {
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema: %v", err))
	}
	return data
}

// ============================================================================
// Response Schemas
// ============================================================================
//
// Store services are third-party code; their responses are validated against
// these schemas before anything is decoded from them.

var nameResponseSchema = []byte(`{
	"type": "object",
	"required": ["providerName"],
	"properties": {
		"providerName": {"type": "string", "minLength": 1}
	}
}`)

var availableResponseSchema = []byte(`{
	"type": "object",
	"required": ["billingAvailable"],
	"properties": {
		"billingAvailable": {"type": "boolean"}
	}
}`)

var resultSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"response"},
	"properties": map[string]interface{}{
		"response": map[string]interface{}{"type": "integer"},
		"message":  map[string]interface{}{"type": "string"},
	},
}

var setupResponseSchema = mustMarshalSchema(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"result"},
	"properties": map[string]interface{}{
		"result": resultSchema,
	},
})

var inventoryResponseSchema = mustMarshalSchema(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"result"},
	"properties": map[string]interface{}{
		"result": resultSchema,
		"purchases": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"sku", "itemType"},
			},
		},
		"skuDetails": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"sku", "itemType"},
			},
		},
	},
})

var servicesResponseSchema = []byte(`{
	"type": "object",
	"required": ["services"],
	"properties": {
		"services": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["package", "endpoint"],
				"properties": {
					"package":   {"type": "string", "minLength": 1},
					"component": {"type": "string"},
					"endpoint":  {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`)

// validateResponse checks a raw response body against a schema and returns a
// single error naming every violation.
func validateResponse(schemaJSON, body []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var violations []string
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		return fmt.Errorf("response does not match schema: %s", strings.Join(violations, "; "))
	}
	return nil
}
