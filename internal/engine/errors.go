package engine

import (
	"errors"

	sdkerrors "cosmossdk.io/errors"
)

// ModuleName defines the module name used as the error codespace.
const ModuleName = "engine"

// Submission sentinel errors. Every abort carries the stage that failed so
// callers can decide whether to retry, relax constraints, or give up.
var (
	ErrNoProviderOffer    = sdkerrors.Register(ModuleName, 2, "no compute-provider offer for target")
	ErrNoConfidentialPool = sdkerrors.Register(ModuleName, 3, "no resource-pool offer with confidential capability")
	ErrNoPoolOffer        = sdkerrors.Register(ModuleName, 4, "no resource-pool offer")
	ErrDatasetUnavailable = sdkerrors.Register(ModuleName, 5, "no offer for protected dataset")
	ErrMatchFailed        = sdkerrors.Register(ModuleName, 6, "order matching failed")
	ErrJobIDUnresolvable  = sdkerrors.Register(ModuleName, 7, "job id unresolvable from commitment")
)

// RecoverySuggestions provides actionable recovery steps for each error type
var RecoverySuggestions = map[error]string{
	ErrNoProviderOffer:    "Verify the target resource id and that its provider has published app offers. Query the order book directly to inspect what is available.",
	ErrNoConfidentialPool: "No pool currently advertises confidential execution on the required runtime. Wait for capacity, or explicitly opt into non-confidential execution if the workload permits it.",
	ErrNoPoolOffer:        "No pool offer matched the request category. Relax the category constraint or wait for pools to publish capacity.",
	ErrDatasetUnavailable: "The protected dataset has no published offer. Confirm the dataset address and that its owner granted access to this target.",
	ErrMatchFailed:        "Matching failed twice, including once against freshly fetched offers. The offers may have been consumed by concurrent matches; resubmit to take a new snapshot.",
	ErrJobIDUnresolvable:  "The commitment exposes no job set, so no job can be tracked. Do not retry with the same commitment; inspect it on the ledger and resubmit if needed.",
}

// WrapWithRecovery wraps an error and attaches a recovery suggestion when
// one is registered for its root cause.
func WrapWithRecovery(err error, msg string, args ...interface{}) error {
	wrapped := sdkerrors.Wrapf(err, msg, args...)
	if suggestion, ok := RecoverySuggestions[err]; ok {
		return &ErrorWithRecovery{Err: wrapped, Recovery: suggestion}
	}
	return wrapped
}

// ErrorWithRecovery wraps an error with a recovery suggestion.
type ErrorWithRecovery struct {
	Err      error
	Recovery string
}

func (e *ErrorWithRecovery) Error() string {
	return e.Err.Error()
}

func (e *ErrorWithRecovery) Unwrap() error {
	return e.Err
}

// GetRecoverySuggestion returns the recovery suggestion for an error's root
// cause, if any.
func GetRecoverySuggestion(err error) string {
	root := err
	for {
		unwrapped := errors.Unwrap(root)
		if unwrapped == nil {
			break
		}
		root = unwrapped
	}
	if suggestion, ok := RecoverySuggestions[root]; ok {
		return suggestion
	}
	return ""
}
