package events

import (
	"math/big"
	"strconv"
	"strings"

	"dinechain/core/types"
)

const (
	// TypeRestaurantRegistered is emitted when an address registers itself as
	// a restaurant bound to an external place id.
	TypeRestaurantRegistered = "discount.restaurant.registered"
	// TypeRestaurantRemoved is emitted when the admin clears a registration.
	TypeRestaurantRemoved = "discount.restaurant.removed"
	// TypePaymentProcessed is emitted after a discounted payment settles.
	TypePaymentProcessed = "discount.payment.processed"
)

// RestaurantRegistered captures a new (or renewed) restaurant registration.
type RestaurantRegistered struct {
	Restaurant [20]byte
	PlaceID    string
	Sequence   uint64
}

// EventType satisfies the Event interface.
func (RestaurantRegistered) EventType() string { return TypeRestaurantRegistered }

// Event converts the payload into its RPC representation.
func (e RestaurantRegistered) Event() *types.Event {
	return &types.Event{Type: TypeRestaurantRegistered, Attributes: map[string]string{
		"restaurant": formatAddress(e.Restaurant),
		"placeId":    strings.TrimSpace(e.PlaceID),
		"sequence":   strconv.FormatUint(e.Sequence, 10),
	}}
}

// RestaurantRemoved captures an admin removal.
type RestaurantRemoved struct {
	Restaurant [20]byte
	PlaceID    string
	Caller     [20]byte
}

// EventType satisfies the Event interface.
func (RestaurantRemoved) EventType() string { return TypeRestaurantRemoved }

// Event converts the payload into its RPC representation.
func (e RestaurantRemoved) Event() *types.Event {
	attrs := map[string]string{
		"restaurant": formatAddress(e.Restaurant),
		"caller":     formatAddress(e.Caller),
	}
	if id := strings.TrimSpace(e.PlaceID); id != "" {
		attrs["placeId"] = id
	}
	return &types.Event{Type: TypeRestaurantRemoved, Attributes: attrs}
}

// PaymentProcessed carries everything an off-chain observer needs to rebuild
// the effective discount of a settled payment.
type PaymentProcessed struct {
	Payer          [20]byte
	Restaurant     [20]byte
	OriginalAmount *big.Int
	AdjustedAmount *big.Int
	CustomRatio    *big.Int
	Timestamp      uint64
}

// EventType satisfies the Event interface.
func (PaymentProcessed) EventType() string { return TypePaymentProcessed }

// Event converts the payload into its RPC representation.
func (e PaymentProcessed) Event() *types.Event {
	return &types.Event{Type: TypePaymentProcessed, Attributes: map[string]string{
		"payer":          formatAddress(e.Payer),
		"restaurant":     formatAddress(e.Restaurant),
		"originalAmount": formatAmount(e.OriginalAmount),
		"adjustedAmount": formatAmount(e.AdjustedAmount),
		"customRatio":    formatAmount(e.CustomRatio),
		"timestamp":      strconv.FormatUint(e.Timestamp, 10),
	}}
}
