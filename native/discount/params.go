package discount

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// RatioScale is the fixed-point unit for every ratio: 1e18 represents 1.0.
var RatioScale = uint256.NewInt(1_000_000_000_000_000_000)

const DefaultTimeWindow uint64 = 3600

// Params holds the pricing parameters. They are written once at genesis and
// never change afterwards.
type Params struct {
	BaseRatio   *big.Int
	DecayFactor *big.Int
	MinRatio    *big.Int
	TimeWindow  uint64
}

// DefaultParams mirrors the original deployment: no discount at zero volume,
// half a ratio unit of decay per token unit, and a 10% maximum discount.
func DefaultParams() Params {
	return Params{
		BaseRatio:   new(big.Int).Set(RatioScale.ToBig()),
		DecayFactor: big.NewInt(500_000_000_000_000_000),
		MinRatio:    big.NewInt(900_000_000_000_000_000),
		TimeWindow:  DefaultTimeWindow,
	}
}

// Validate checks 0 < MinRatio <= BaseRatio <= RatioScale, DecayFactor >= 0 and
// a positive window.
func (p Params) Validate() error {
	if p.BaseRatio == nil || p.DecayFactor == nil || p.MinRatio == nil {
		return fmt.Errorf("%w: ratios must be set", ErrInvalidParams)
	}
	if p.MinRatio.Sign() <= 0 {
		return fmt.Errorf("%w: min ratio must be positive", ErrInvalidParams)
	}
	if p.MinRatio.Cmp(p.BaseRatio) > 0 {
		return fmt.Errorf("%w: min ratio %s exceeds base ratio %s", ErrInvalidParams, p.MinRatio, p.BaseRatio)
	}
	if p.BaseRatio.Cmp(RatioScale.ToBig()) > 0 {
		return fmt.Errorf("%w: base ratio %s exceeds scale", ErrInvalidParams, p.BaseRatio)
	}
	if p.DecayFactor.Sign() < 0 || p.DecayFactor.BitLen() > 256 {
		return fmt.Errorf("%w: decay factor out of range", ErrInvalidParams)
	}
	if p.TimeWindow == 0 {
		return fmt.Errorf("%w: time window must be positive", ErrInvalidParams)
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := Params{TimeWindow: p.TimeWindow}
	if p.BaseRatio != nil {
		clone.BaseRatio = new(big.Int).Set(p.BaseRatio)
	}
	if p.DecayFactor != nil {
		clone.DecayFactor = new(big.Int).Set(p.DecayFactor)
	}
	if p.MinRatio != nil {
		clone.MinRatio = new(big.Int).Set(p.MinRatio)
	}
	return clone
}

type fixedParams struct {
	base   *uint256.Int
	decay  *uint256.Int
	min    *uint256.Int
	window uint64
}

func (p Params) fixed() fixedParams {
	return fixedParams{
		base:   uint256.MustFromBig(p.BaseRatio),
		decay:  uint256.MustFromBig(p.DecayFactor),
		min:    uint256.MustFromBig(p.MinRatio),
		window: p.TimeWindow,
	}
}
