package rpc

import (
	"errors"

	"dinechain/core"
	"dinechain/core/types"
	"dinechain/native/bank"
	"dinechain/native/common"
	"dinechain/native/discount"
)

// Ledger error codes returned in the JSON-RPC error object.
const (
	codeAlreadyRegistered  = -32050
	codeNotRegistered      = -32051
	codeLedgerUnauthorized = -32052
	codeInvalidAmount      = -32053
	codeTokenTransfer      = -32054
	codePlaceIDBound       = -32055
	codeModulePaused       = -32056
	codeBadNonce           = -32057
	codeQuotaExceeded      = -32058
)

// ledgerError maps a node or module error onto its JSON-RPC code. The message
// is the original error text so clients can match on it.
func ledgerError(err error) *RPCError {
	code := codeServerError
	switch {
	case errors.Is(err, discount.ErrAlreadyRegistered):
		code = codeAlreadyRegistered
	case errors.Is(err, discount.ErrNotRegistered):
		code = codeNotRegistered
	case errors.Is(err, discount.ErrUnauthorized):
		code = codeLedgerUnauthorized
	case errors.Is(err, discount.ErrInvalidAmount), errors.Is(err, bank.ErrInvalidAmount):
		code = codeInvalidAmount
	case errors.Is(err, bank.ErrInsufficientBalance), errors.Is(err, bank.ErrInsufficientAllowance):
		code = codeTokenTransfer
	case errors.Is(err, discount.ErrPlaceIDBound):
		code = codePlaceIDBound
	case errors.Is(err, common.ErrModulePaused):
		code = codeModulePaused
	case errors.Is(err, core.ErrNonceMismatch):
		code = codeBadNonce
	case errors.Is(err, common.ErrQuotaTxExceeded), errors.Is(err, common.ErrQuotaVolumeExceeded), errors.Is(err, common.ErrQuotaCounterOverflow):
		code = codeQuotaExceeded
	case errors.Is(err, discount.ErrInvalidPlaceID), errors.Is(err, core.ErrInvalidTransaction), errors.Is(err, types.ErrInvalidSignature):
		code = codeInvalidParams
	case errors.Is(err, core.ErrReceiptNotFound):
		code = codeNotFound
	}
	return &RPCError{Code: code, Message: err.Error()}
}
