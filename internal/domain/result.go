package domain

import "encoding/json"

// ResearchOutput is a completed run's result document: the raw JSON as
// delivered by the processor plus the fields this system reads from it.
// The raw document is stored verbatim; the typed view is decoded once here
// rather than re-parsed at every consumer.
type ResearchOutput struct {
	Raw              json.RawMessage
	ExecutiveSummary string
}

// ParseResearchOutput decodes the fields of interest from a raw result
// document. The executive summary may sit under a content envelope or at the
// top level depending on the processor tier; the envelope form wins when both
// are present. A document missing the summary still parses; the summary is
// simply empty.
func ParseResearchOutput(raw json.RawMessage) ResearchOutput {
	output := ResearchOutput{Raw: raw}

	var doc struct {
		ExecutiveSummary string `json:"executive_summary"`
		Content          *struct {
			ExecutiveSummary string `json:"executive_summary"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return output
	}

	if doc.Content != nil && doc.Content.ExecutiveSummary != "" {
		output.ExecutiveSummary = doc.Content.ExecutiveSummary
	} else {
		output.ExecutiveSummary = doc.ExecutiveSummary
	}
	return output
}

// FitAnalysis is the optional enrichment triple derived from a completed
// research result. EmployeeCount is free-form ("250", "50-100", "10000+")
// and may be absent.
type FitAnalysis struct {
	FitScore      string  `json:"fit_score"`
	Pitch         string  `json:"pitch"`
	EmployeeCount *string `json:"employee_count,omitempty"`
}
