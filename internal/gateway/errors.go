package gateway

import (
	sdkerrors "cosmossdk.io/errors"
)

// ModuleName defines the module name used as the error codespace.
const ModuleName = "gateway"

// Gateway sentinel errors
var (
	ErrTransport   = sdkerrors.Register(ModuleName, 2, "marketplace transport failure")
	ErrDecode      = sdkerrors.Register(ModuleName, 3, "malformed marketplace response")
	ErrStatus      = sdkerrors.Register(ModuleName, 4, "marketplace rejected the request")
	ErrRateLimited = sdkerrors.Register(ModuleName, 5, "outbound rate limit wait aborted")
	ErrSigner      = sdkerrors.Register(ModuleName, 6, "signing context failure")
)
