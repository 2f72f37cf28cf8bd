package scoring

import (
	"github.com/teem-market/teem/internal/market"
)

const (
	// ModuleName defines the module name used as the error codespace.
	ModuleName = "scoring"

	// StatusSuccess marks an outcome whose computation succeeded.
	StatusSuccess = "success"

	// StatusError marks an outcome carrying an error detail.
	StatusError = "error"

	// FallbackLabel is the algorithm label synthesized when a payload can
	// only be interpreted as a bare numeric literal.
	FallbackLabel = "A * 2"
)

// Outcome is the decoded terminal payload of a completed job.
//
// RawInput is present iff Provenance is plain: a confidential-provenance
// outcome must never carry the raw input, and the consuming side never
// synthesizes it.
type Outcome struct {
	AlgorithmLabel string            `json:"algorithm_label"`
	Value          float64           `json:"value"`
	Status         string            `json:"status"`
	Provenance     market.Provenance `json:"provenance"`
	RawInput       *float64          `json:"raw_input,omitempty"`
	ErrorDetail    string            `json:"error_detail,omitempty"`
}

// wirePayload is the worker's result.json shape.
type wirePayload struct {
	ScoringLogic string   `json:"scoring_logic"`
	Result       *float64 `json:"result"`
	Status       string   `json:"status"`
	DataSource   string   `json:"data_source"`
	InputA       *float64 `json:"input_A"`
	ErrorMessage string   `json:"error_message"`
}

const (
	dataSourceProtected = "protected_data"
	dataSourceArgs      = "command_line_args"
)
