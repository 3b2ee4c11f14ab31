package discount

import (
	"math/big"

	"github.com/holiman/uint256"
)

// pruneExpired drops payments older than window relative to now. A payment
// exactly window seconds old still counts. Timestamps ahead of now are kept.
func pruneExpired(history []Payment, now, window uint64) []Payment {
	kept := history[:0:0]
	for _, p := range history {
		if now > p.Timestamp && now-p.Timestamp > window {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// recentVolume sums the amounts of history, saturating at the uint256 maximum.
func recentVolume(history []Payment) *uint256.Int {
	total := new(uint256.Int)
	for _, p := range history {
		if p.Amount == nil || p.Amount.Sign() <= 0 {
			continue
		}
		amount, overflow := uint256.FromBig(p.Amount)
		if overflow {
			return new(uint256.Int).SetAllOne()
		}
		if _, overflow := total.AddOverflow(total, amount); overflow {
			return new(uint256.Int).SetAllOne()
		}
	}
	return total
}

// customRatio evaluates max(min, base - decay*volume/scale).
func customRatio(p fixedParams, volume *uint256.Int) *uint256.Int {
	reduction, overflow := new(uint256.Int).MulDivOverflow(p.decay, volume, RatioScale)
	if overflow || reduction.Cmp(p.base) >= 0 {
		return new(uint256.Int).Set(p.min)
	}
	ratio := new(uint256.Int).Sub(p.base, reduction)
	if ratio.Lt(p.min) {
		return new(uint256.Int).Set(p.min)
	}
	return ratio
}

// adjustedAmount evaluates amount*ratio/scale. The ratio never exceeds scale,
// so the result always fits and never exceeds amount.
func adjustedAmount(amount, ratio *uint256.Int) *uint256.Int {
	out, _ := new(uint256.Int).MulDivOverflow(amount, ratio, RatioScale)
	return out
}

func quote(p fixedParams, history []Payment, amount *uint256.Int) *Quote {
	volume := recentVolume(history)
	ratio := customRatio(p, volume)
	q := &Quote{
		RecentVolume: volume.ToBig(),
		CustomRatio:  ratio.ToBig(),
	}
	if amount != nil {
		q.AdjustedAmount = adjustedAmount(amount, ratio).ToBig()
	} else {
		q.AdjustedAmount = new(big.Int)
	}
	return q
}
