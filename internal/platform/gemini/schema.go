package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/prospecthq/prospect-api/internal/domain"
)

// analysisSchemaJSON constrains the model's output. Enrichment is
// all-or-nothing: output that fails this schema is discarded entirely rather
// than applied field by field.
const analysisSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["fit_score", "pitch"],
	"properties": {
		"fit_score": {
			"type": "string",
			"pattern": "^(10|[1-9])/10$"
		},
		"pitch": {
			"type": "string",
			"minLength": 1
		},
		"employee_count": {
			"type": ["string", "null"]
		}
	}
}`

var analysisSchema = jsonschema.MustCompileString("analysis.json", analysisSchemaJSON)

// ParseAnalysis validates and decodes the model's JSON output into a
// FitAnalysis. Malformed or schema-violating output returns an error and no
// partial fields.
func ParseAnalysis(raw []byte) (*domain.FitAnalysis, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("analysis output is not valid JSON: %w", err)
	}

	if err := analysisSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("analysis output failed schema validation: %w", err)
	}

	var analysis domain.FitAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis output: %w", err)
	}

	if analysis.EmployeeCount != nil && strings.TrimSpace(*analysis.EmployeeCount) == "" {
		analysis.EmployeeCount = nil
	}

	return &analysis, nil
}
