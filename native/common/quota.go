package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaTxExceeded      = errors.New("quota: transaction limit exceeded")
	ErrQuotaVolumeExceeded  = errors.New("quota: volume cap exceeded")
	ErrQuotaCounterOverflow = errors.New("quota: counter overflow")
)

// QuotaUsage captures the counters consumed by one sender in one epoch.
type QuotaUsage struct {
	TxCount uint32
	Volume  uint64
	EpochID uint64
}

// Quota bounds how many transactions, and how much settlement volume, a sender
// may push through the node per epoch. Zero limits are unlimited.
type Quota struct {
	MaxTxPerEpoch     uint32
	MaxVolumePerEpoch uint64
	EpochSeconds      uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.EpochSeconds > 0 && (q.MaxTxPerEpoch > 0 || q.MaxVolumePerEpoch > 0)
}

// Epoch returns the epoch index containing the unix timestamp now.
func (q Quota) Epoch(now uint64) uint64 {
	if q.EpochSeconds == 0 {
		return 0
	}
	return now / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional transactions and volume fit the
// quota. On success the returned usage holds the updated counters; on denial
// prev is returned unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaUsage, addTx uint32, addVolume uint64) (QuotaUsage, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaUsage{EpochID: nowEpoch}
	}

	if addTx > 0 {
		if next.TxCount > math.MaxUint32-addTx {
			return prev, ErrQuotaCounterOverflow
		}
		next.TxCount += addTx
	}
	if q.MaxTxPerEpoch > 0 && next.TxCount > q.MaxTxPerEpoch {
		return prev, ErrQuotaTxExceeded
	}

	if addVolume > 0 {
		if next.Volume > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.Volume += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.Volume > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}
