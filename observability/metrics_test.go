package observability

import (
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dinechain/core/events"
)

func TestMetricsEmitterRecordsPayments(t *testing.T) {
	m := Ledger()
	before := testutil.ToFloat64(m.payments)
	settledBefore := testutil.ToFloat64(m.settled)

	var restaurant [20]byte
	restaurant[19] = 0x42
	MetricsEmitter{}.Emit(events.PaymentProcessed{
		Restaurant:     restaurant,
		OriginalAmount: big.NewInt(1_000_000),
		AdjustedAmount: big.NewInt(999_999),
		CustomRatio:    big.NewInt(999_999_999_999_500_000),
	})

	if got := testutil.ToFloat64(m.payments) - before; got != 1 {
		t.Fatalf("payments delta %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.settled) - settledBefore; got != 999_999 {
		t.Fatalf("settled delta %v", got)
	}
	label := events.PaymentProcessed{Restaurant: restaurant}.Event().Attributes["restaurant"]
	if ratio := testutil.ToFloat64(m.ratio.WithLabelValues(label)); ratio <= 0.99 || ratio > 1 {
		t.Fatalf("unexpected ratio gauge %v", ratio)
	}
}

func TestRecordTransactionOutcomes(t *testing.T) {
	m := Ledger()
	m.RecordTransaction("pay", nil)
	m.RecordTransaction("pay", errors.New("boom"))
	if testutil.ToFloat64(m.transactions.WithLabelValues("pay", "rejected")) < 1 {
		t.Fatalf("rejected transaction not counted")
	}
}

func TestRPCObserve(t *testing.T) {
	m := RPC()
	m.Observe("dine_getParams", 0, 0)
	m.Observe("dine_sendTransaction", -32051, 0)
	if testutil.ToFloat64(m.errors.WithLabelValues("dine_sendTransaction", "-32051")) < 1 {
		t.Fatalf("error not counted")
	}
}
