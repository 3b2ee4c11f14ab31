package types

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestTransactionSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	expected := crypto.PubkeyToAddress(key.PublicKey).Bytes()

	tx := &Transaction{
		ChainID: 7,
		Type:    TxTypePay,
		Nonce:   3,
		To:      bytes.Repeat([]byte{0x11}, 20),
		Value:   big.NewInt(1_000_000),
	}
	if err := tx.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	from, err := tx.From()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !bytes.Equal(from, expected) {
		t.Fatalf("recovered %x, want %x", from, expected)
	}

	// Tampering with any signed field changes the recovered sender.
	tampered := &Transaction{ChainID: tx.ChainID, Type: tx.Type, Nonce: tx.Nonce, To: tx.To, Value: big.NewInt(1), R: tx.R, S: tx.S, V: tx.V}
	other, err := tampered.From()
	if err == nil && bytes.Equal(other, expected) {
		t.Fatalf("tampered transaction recovered original sender")
	}

	// The same signature replayed under another chain id recovers someone else.
	replayed := &Transaction{ChainID: 8, Type: tx.Type, Nonce: tx.Nonce, To: tx.To, Value: tx.Value, R: tx.R, S: tx.S, V: tx.V}
	other, err = replayed.From()
	if err == nil && bytes.Equal(other, expected) {
		t.Fatalf("transaction recovered original sender under a different chain id")
	}
}

func TestTransactionHashTreatsNilValueAsZero(t *testing.T) {
	a := &Transaction{Type: TxTypeRegisterRestaurant, Nonce: 0, Data: []byte("place")}
	b := &Transaction{Type: TxTypeRegisterRestaurant, Nonce: 0, Data: []byte("place"), Value: new(big.Int)}
	ha, err := a.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !bytes.Equal(ha, hb) {
		t.Fatalf("nil and zero value hash differently")
	}
}

func TestTransactionFromRequiresSignature(t *testing.T) {
	tx := &Transaction{Type: TxTypePay}
	if _, err := tx.From(); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	tx.R, tx.S, tx.V = big.NewInt(1), big.NewInt(1), big.NewInt(5)
	if _, err := tx.From(); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for bad V, got %v", err)
	}
}

func TestTxTypeLabels(t *testing.T) {
	if TxTypePay.String() != "pay" || !TxTypePay.Valid() {
		t.Fatalf("unexpected pay label")
	}
	if TxType(0x7f).Valid() {
		t.Fatalf("unknown type reported valid")
	}
}

func TestParseHash(t *testing.T) {
	want := bytes.Repeat([]byte{0xab}, 32)
	got, err := ParseHash("0x" + strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(got[:], want) {
		t.Fatalf("unexpected hash %x", got)
	}
	for _, bad := range []string{"", "0x1234", strings.Repeat("zz", 32)} {
		if _, err := ParseHash(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
