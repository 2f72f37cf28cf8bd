package market

import (
	sdkerrors "cosmossdk.io/errors"
)

// Market sentinel errors
var (
	ErrEmptyInput     = sdkerrors.Register(ModuleName, 2, "input spec carries neither a plain value nor a protected reference")
	ErrAmbiguousInput = sdkerrors.Register(ModuleName, 3, "input spec carries both a plain value and a protected reference")
	ErrInvalidRequest = sdkerrors.Register(ModuleName, 4, "invalid request descriptor")
	ErrInvalidPrice   = sdkerrors.Register(ModuleName, 5, "invalid max price")
	ErrInputConflict  = sdkerrors.Register(ModuleName, 6, "request cannot carry both execution args and a dataset reference")
)
