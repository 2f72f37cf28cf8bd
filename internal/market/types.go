package market

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
)

const (
	// ModuleName defines the module name used as the error codespace.
	ModuleName = "market"

	// RequestVolume is the number of jobs a single request authorizes.
	// The orchestrator never batches; one submission is one job.
	RequestVolume int64 = 1

	// CategoryAny matches offers of every category during selection.
	CategoryAny = -1
)

// CapabilityTag is a bitset encoding the execution guarantees an offer
// provides or a request demands.
//
// An offer satisfies a requirement when every required bit is present on the
// offer. Extra bits on the offer side are allowed; the check is a subset
// check, never equality.
type CapabilityTag uint32

const (
	// TagNone requires no execution guarantees and matches every offer.
	TagNone CapabilityTag = 0

	// TagConfidential requires confidential (enclave) execution.
	TagConfidential CapabilityTag = 1 << 0

	// TagRuntime requires the marketplace's specific confidential runtime.
	TagRuntime CapabilityTag = 1 << 1

	// TagConfidentialRuntime is the full requirement for confidential
	// operation: enclave execution on the specific runtime.
	TagConfidentialRuntime = TagConfidential | TagRuntime
)

// Satisfies reports whether a tag carries every bit of the requirement.
func (t CapabilityTag) Satisfies(requirement CapabilityTag) bool {
	return t&requirement == requirement
}

// OfferKind identifies which order book an offer was published on.
type OfferKind string

const (
	// OfferKindApp is a compute-provider (application) offer.
	OfferKindApp OfferKind = "app"

	// OfferKindPool is a resource-pool (worker capacity) offer.
	OfferKindPool OfferKind = "pool"

	// OfferKindDataset is a protected-dataset offer.
	OfferKindDataset OfferKind = "dataset"
)

// ResourceOffer is an externally published, third-party-owned capacity
// descriptor. The orchestrator only reads and ranks offers; they appear and
// disappear from the order book outside its control.
type ResourceOffer struct {
	// ProviderID is the address of the publishing provider.
	ProviderID string `json:"provider_id"`
	// Kind is the order book the offer belongs to.
	Kind OfferKind `json:"kind"`
	// Category groups offers by execution class.
	Category int `json:"category"`
	// Tag encodes the execution guarantees the offer provides.
	Tag CapabilityTag `json:"tag"`
	// Price is the per-unit price in the marketplace denom.
	Price math.Int `json:"price"`
	// TotalVolume is the volume the offer was published with.
	TotalVolume int64 `json:"total_volume"`
	// RemainingVolume is the volume still available for matching.
	RemainingVolume int64 `json:"remaining_volume"`
}

// Validate checks the fields selection depends on. Offers are decoded from
// third-party-published data; a malformed entry must surface here, at the
// boundary, instead of faulting the ranking code.
func (o ResourceOffer) Validate() error {
	if o.Price.IsNil() {
		return fmt.Errorf("offer from %q has no price", o.ProviderID)
	}
	if o.Price.IsNegative() {
		return fmt.Errorf("offer from %q has negative price %s", o.ProviderID, o.Price)
	}
	return nil
}

// MaxPrices caps what the requester will pay per offer kind.
type MaxPrices struct {
	App       math.Int `json:"app"`
	Pool      math.Int `json:"pool"`
	Requester math.Int `json:"requester"`
}

// Validate checks that every cap is a non-negative integer.
func (p MaxPrices) Validate() error {
	for _, entry := range []struct {
		name  string
		price math.Int
	}{
		{"app", p.App},
		{"pool", p.Pool},
		{"requester", p.Requester},
	} {
		if entry.price.IsNil() {
			return fmt.Errorf("%s max price is not set", entry.name)
		}
		if entry.price.IsNegative() {
			return fmt.Errorf("%s max price %s is negative", entry.name, entry.price)
		}
	}
	return nil
}

// RequestDescriptor is the locally constructed request half of a match.
// It is created fresh per submission and becomes immutable once signed.
type RequestDescriptor struct {
	// Salt makes each descriptor unique even for identical parameters.
	Salt string `json:"salt"`
	// Target is the resource (application) the request executes.
	Target string `json:"target"`
	// Category restricts which pool offers the request can match.
	Category int `json:"category"`
	// MaxPrices caps the acceptable offer prices.
	MaxPrices MaxPrices `json:"max_prices"`
	// Volume is always RequestVolume; the orchestrator never batches.
	Volume int64 `json:"volume"`
	// Tag encodes the required execution guarantees.
	Tag CapabilityTag `json:"tag"`
	// ExecutionArgs carries the plaintext input, when provenance is plain.
	ExecutionArgs string `json:"execution_args,omitempty"`
	// DatasetRef is the protected-data address, when provenance is
	// confidential.
	DatasetRef string `json:"dataset_ref,omitempty"`
	// CreatedAt is when the descriptor was built.
	CreatedAt time.Time `json:"created_at"`
}

// SignedRequest is an immutable descriptor with the wallet's signature.
type SignedRequest struct {
	Descriptor RequestDescriptor `json:"descriptor"`
	Signer     string            `json:"signer"`
	Signature  []byte            `json:"signature"`
}

// CommitmentID identifies the atomic result of a successful match.
type CommitmentID string

// JobID identifies a single trackable unit of remote work.
type JobID string

// Provenance records whether a job's input was processed confidentially or
// in the open. It is fixed at submission time and carried through to the
// outcome.
type Provenance string

const (
	ProvenanceConfidential Provenance = "confidential"
	ProvenancePlain        Provenance = "plain"
)

// InputSpec is the caller's input: exactly one of a plaintext value or a
// protected-data reference.
type InputSpec struct {
	PlainValue   *float64 `json:"plain_value,omitempty"`
	ProtectedRef string   `json:"protected_ref,omitempty"`
}

// Validate checks that exactly one input source is set.
func (s InputSpec) Validate() error {
	switch {
	case s.PlainValue == nil && s.ProtectedRef == "":
		return ErrEmptyInput
	case s.PlainValue != nil && s.ProtectedRef != "":
		return ErrAmbiguousInput
	}
	return nil
}

// Provenance returns the provenance the input implies. A protected reference
// means confidential processing; a plain value is processed in the open.
func (s InputSpec) Provenance() Provenance {
	if s.ProtectedRef != "" {
		return ProvenanceConfidential
	}
	return ProvenancePlain
}

// Commitment is the immutable result of matching one signed request against
// the resolved offers. It authorizes exactly one job (Volume is 1).
type Commitment struct {
	ID         CommitmentID  `json:"id"`
	Request    SignedRequest `json:"request"`
	AppOffer   ResourceOffer `json:"app_offer"`
	PoolOffer  ResourceOffer `json:"pool_offer"`
	Dataset    string        `json:"dataset,omitempty"`
	Provenance Provenance    `json:"provenance"`
	// Degraded is set when the dataset lookup failed and the submission
	// continued without protected data.
	Degraded  bool      `json:"degraded,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommitmentDetails is the ledger's view of a commitment, used only by the
// job-id resolution fallback.
type CommitmentDetails struct {
	ID     CommitmentID `json:"id"`
	JobIDs []JobID      `json:"job_ids"`
}

// RemoteState is the ledger's free-form lifecycle string for a job. The
// poller maps it into the closed local state model at a single boundary.
type RemoteState string

const (
	RemoteStateUnset     RemoteState = "UNSET"
	RemoteStateActive    RemoteState = "ACTIVE"
	RemoteStateRevealing RemoteState = "REVEALING"
	RemoteStateCompleted RemoteState = "COMPLETED"
	RemoteStateFailed    RemoteState = "FAILED"
	RemoteStateTimeout   RemoteState = "TIMEOUT"
)
