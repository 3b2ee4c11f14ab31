package discount

import "errors"

var (
	ErrAlreadyRegistered = errors.New("discount: restaurant already registered")
	ErrNotRegistered     = errors.New("discount: restaurant not registered")
	ErrUnauthorized      = errors.New("discount: only owner can call this function")
	ErrInvalidAmount     = errors.New("discount: amount must be greater than zero")
	ErrInvalidPlaceID    = errors.New("discount: place id required")
	ErrPlaceIDBound      = errors.New("discount: place id bound to another restaurant")
	ErrInvalidParams     = errors.New("discount: invalid pricing parameters")
	ErrNotConfigured     = errors.New("discount: ledger not configured")
)
