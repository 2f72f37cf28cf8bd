package market

import (
	"time"

	sdkerrors "cosmossdk.io/errors"
	"github.com/google/uuid"
)

// BuildRequest constructs a fresh request descriptor. Pure construction, no
// I/O; the descriptor becomes immutable once signed.
//
// Exactly one of args or datasetRef may be set: a confidential-data request
// must not simultaneously carry plaintext args intended for confidential
// processing.
func BuildRequest(target string, category int, prices MaxPrices, tag CapabilityTag, args, datasetRef string) (RequestDescriptor, error) {
	if target == "" {
		return RequestDescriptor{}, sdkerrors.Wrap(ErrInvalidRequest, "target resource is required")
	}
	if err := prices.Validate(); err != nil {
		return RequestDescriptor{}, sdkerrors.Wrap(ErrInvalidPrice, err.Error())
	}
	if args != "" && datasetRef != "" {
		return RequestDescriptor{}, ErrInputConflict
	}

	return RequestDescriptor{
		Salt:          uuid.NewString(),
		Target:        target,
		Category:      category,
		MaxPrices:     prices,
		Volume:        RequestVolume,
		Tag:           tag,
		ExecutionArgs: args,
		DatasetRef:    datasetRef,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
