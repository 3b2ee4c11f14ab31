package discount

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// Restaurant is the registration record of one address. Cleared records are
// kept so the address can register again later.
type Restaurant struct {
	Address      [20]byte
	PlaceID      string
	Registered   bool
	Sequence     uint64
	RegisteredAt uint64
}

// Payment is a single settled payment in a restaurant's rolling window.
// Amount is the requested amount before any discount.
type Payment struct {
	Timestamp uint64
	Amount    *big.Int
}

// Quote is the outcome of pricing a payment against the current window.
type Quote struct {
	RecentVolume   *big.Int
	CustomRatio    *big.Int
	AdjustedAmount *big.Int
}

// RestaurantRatio pairs an active restaurant with its current ratio.
type RestaurantRatio struct {
	Address  [20]byte
	PlaceID  string
	Ratio    *big.Int
	Sequence uint64
}

// String renders the tuple format consumed by the legacy web client.
func (r RestaurantRatio) String() string {
	ratio := "0"
	if r.Ratio != nil {
		ratio = r.Ratio.String()
	}
	return fmt.Sprintf("Restaurant Address: %s, Google Map ID: %s, Custom Ratio: %s",
		hex.EncodeToString(r.Address[:]), r.PlaceID, ratio)
}

// Config is the ledger configuration persisted at genesis.
type Config struct {
	Params Params
	Admin  [20]byte
}
