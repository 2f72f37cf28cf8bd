package scoring

import (
	"encoding/json"
	"strconv"
	"strings"

	sdkerrors "cosmossdk.io/errors"

	"github.com/teem-market/teem/internal/market"
)

// ErrUnparsablePayload reports a payload that is neither a structured result
// nor a numeric literal. Non-fatal: the poller captures it inside a
// Completed outcome instead of failing the job.
var ErrUnparsablePayload = sdkerrors.Register(ModuleName, 2, "result payload is neither structured nor numeric")

// Parse decodes a fetched payload without pipeline context. Provenance of
// fallback-decoded payloads defaults to confidential.
func Parse(raw string) (Outcome, error) {
	return ParseFor(raw, "")
}

// ParseFor decodes a fetched payload into an outcome.
//
// Primary path: structured JSON decode of the worker's result document.
// Fallback path: the whole payload interpreted as a single numeric literal.
// When both fail, the returned outcome carries StatusError and the error is
// ErrUnparsablePayload; the outcome is still usable.
//
// prov is the provenance fixed at submission time. When set it overrides
// whatever the payload claims, and the raw input field is stripped unless
// the final provenance is plain. An empty prov means the caller has no
// pipeline context; structured payloads then keep their self-declared data
// source and fallback payloads default to confidential.
func ParseFor(raw string, prov market.Provenance) (Outcome, error) {
	if out, ok := parseStructured(raw, prov); ok {
		return out, nil
	}

	fallbackProv := prov
	if fallbackProv == "" {
		fallbackProv = market.ProvenanceConfidential
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return Outcome{
			AlgorithmLabel: FallbackLabel,
			Status:         StatusError,
			Provenance:     fallbackProv,
			ErrorDetail:    "unparsable result payload",
		}, sdkerrors.Wrapf(ErrUnparsablePayload, "%.64q", raw)
	}

	return Outcome{
		AlgorithmLabel: FallbackLabel,
		Value:          value,
		Status:         StatusSuccess,
		Provenance:     fallbackProv,
	}, nil
}

// parseStructured attempts the primary decode. A document only counts as
// structured when it declares a status or a scoring label; this keeps bare
// JSON numbers on the fallback path.
func parseStructured(raw string, prov market.Provenance) (Outcome, bool) {
	var wire wirePayload
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return Outcome{}, false
	}
	if wire.Status == "" && wire.ScoringLogic == "" {
		return Outcome{}, false
	}

	out := Outcome{
		AlgorithmLabel: wire.ScoringLogic,
		Status:         wire.Status,
		ErrorDetail:    wire.ErrorMessage,
	}
	if wire.Result != nil {
		out.Value = *wire.Result
	}
	if out.AlgorithmLabel == "" {
		out.AlgorithmLabel = FallbackLabel
	}

	out.Provenance = prov
	if out.Provenance == "" {
		switch wire.DataSource {
		case dataSourceArgs:
			out.Provenance = market.ProvenancePlain
		case dataSourceProtected:
			out.Provenance = market.ProvenanceConfidential
		default:
			out.Provenance = market.ProvenanceConfidential
		}
	}

	// Raw input is carried only for plain provenance, regardless of what
	// the payload included.
	if out.Provenance == market.ProvenancePlain {
		out.RawInput = wire.InputA
	}

	return out, true
}
