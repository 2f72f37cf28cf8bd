package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"

	sdkerrors "cosmossdk.io/errors"

	"github.com/teem-market/teem/internal/market"
)

// HMACSigner signs request descriptors with a shared-secret HMAC. It stands
// in for the wallet's signing context on test networks; the descriptor hash
// it signs is the canonical JSON encoding, so a descriptor is immutable once
// signed.
type HMACSigner struct {
	address string
	key     []byte
}

// NewHMACSigner creates a signer bound to an account address.
func NewHMACSigner(address string, key []byte) *HMACSigner {
	return &HMACSigner{address: address, key: key}
}

// SignRequest produces a signed, immutable copy of the descriptor.
func (s *HMACSigner) SignRequest(desc market.RequestDescriptor) (market.SignedRequest, error) {
	if s.address == "" || len(s.key) == 0 {
		return market.SignedRequest{}, sdkerrors.Wrap(ErrSigner, "signer address and key are required")
	}

	canonical, err := json.Marshal(desc)
	if err != nil {
		return market.SignedRequest{}, sdkerrors.Wrap(ErrSigner, err.Error())
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonical)

	return market.SignedRequest{
		Descriptor: desc,
		Signer:     s.address,
		Signature:  mac.Sum(nil),
	}, nil
}
