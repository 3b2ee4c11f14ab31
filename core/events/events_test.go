package events

import (
	"math/big"
	"strings"
	"testing"
)

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(TokenTransfer{Asset: "usdt", Amount: big.NewInt(1)})
	buf.Emit(plainEvent{})
	buf.Emit(TokenApproval{Amount: big.NewInt(2)})

	if got := len(buf.Events()); got != 3 {
		t.Fatalf("expected 3 buffered events, got %d", got)
	}

	var seen []string
	buf.Flush(EmitterFunc(func(e Event) { seen = append(seen, e.EventType()) }))
	want := []string{TypeTokenTransfer, "plain", TypeTokenApproval}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected flush order %v", seen)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("buffer not reset after flush")
	}

	buf.Emit(plainEvent{})
	buf.Flush(nil)
	if len(buf.Events()) != 0 {
		t.Fatalf("flush to nil emitter should still reset the buffer")
	}
}

func TestFanoutSkipsNilEmitters(t *testing.T) {
	var first, second int
	fan := Fanout{
		EmitterFunc(func(Event) { first++ }),
		nil,
		NoopEmitter{},
		EmitterFunc(func(Event) { second++ }),
	}
	fan.Emit(plainEvent{})
	fan.Emit(plainEvent{})
	if first != 2 || second != 2 {
		t.Fatalf("unexpected delivery counts %d/%d", first, second)
	}
	var nilFunc EmitterFunc
	nilFunc.Emit(plainEvent{})
}

func TestToWireRendersDiscountEvents(t *testing.T) {
	var payer, restaurant [20]byte
	payer[19] = 0x01
	restaurant[19] = 0x02
	list := []Event{
		plainEvent{},
		PaymentProcessed{
			Payer:          payer,
			Restaurant:     restaurant,
			OriginalAmount: big.NewInt(1_000_000),
			AdjustedAmount: big.NewInt(999_999),
			CustomRatio:    big.NewInt(999_999_999_999_500_000),
			Timestamp:      42,
		},
		RestaurantRemoved{Restaurant: restaurant, Caller: payer},
	}
	wire := ToWire(list)
	if len(wire) != 2 {
		t.Fatalf("expected 2 wire events, got %d", len(wire))
	}
	payment := wire[0]
	if payment.Type != TypePaymentProcessed {
		t.Fatalf("unexpected type %s", payment.Type)
	}
	if payment.Attributes["adjustedAmount"] != "999999" || payment.Attributes["timestamp"] != "42" {
		t.Fatalf("unexpected payment attributes %+v", payment.Attributes)
	}
	if !strings.HasPrefix(payment.Attributes["payer"], "dine1") {
		t.Fatalf("expected bech32 payer, got %s", payment.Attributes["payer"])
	}
	if _, ok := wire[1].Attributes["placeId"]; ok {
		t.Fatalf("empty place id should be omitted")
	}
}

func TestTokenEventsNormalizeAsset(t *testing.T) {
	evt := TokenTransfer{Asset: "  usdt ", Amount: nil}.Event()
	if evt.Attributes["asset"] != "USDT" || evt.Attributes["amount"] != "0" {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
	approval := TokenApproval{Asset: " ", Amount: big.NewInt(5)}.Event()
	if _, ok := approval.Attributes["asset"]; ok {
		t.Fatalf("blank asset should be omitted")
	}
}
