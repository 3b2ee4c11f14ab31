package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"dinechain/core"
	"dinechain/core/types"
	"dinechain/crypto"
	"dinechain/native/discount"
)

// TransactionParams is the wire form of a signed transaction. Addresses may
// be bech32 or 0x hex; amounts and signature components are decimal and hex
// strings respectively.
type TransactionParams struct {
	ChainID uint64 `json:"chainId"`
	Type    string `json:"type"`
	Nonce   uint64 `json:"nonce"`
	To      string `json:"to,omitempty"`
	Value   string `json:"value,omitempty"`
	Data    string `json:"data,omitempty"`
	R       string `json:"r"`
	S       string `json:"s"`
	V       string `json:"v"`
}

// EncodeTransaction renders a signed transaction for dine_sendTransaction.
func EncodeTransaction(tx *types.Transaction) TransactionParams {
	params := TransactionParams{
		ChainID: tx.ChainID,
		Type:    tx.Type.String(),
		Nonce:   tx.Nonce,
		Data:    string(tx.Data),
		R:       hexBig(tx.R),
		S:       hexBig(tx.S),
		V:       hexBig(tx.V),
	}
	if len(tx.To) == 20 {
		params.To = crypto.MustNewAddress(crypto.DinePrefix, tx.To).String()
	}
	if tx.Value != nil {
		params.Value = tx.Value.String()
	}
	return params
}

// Transaction converts the wire form back into a transaction.
func (p TransactionParams) Transaction() (*types.Transaction, error) {
	txType, err := parseTxType(p.Type)
	if err != nil {
		return nil, err
	}
	tx := &types.Transaction{ChainID: p.ChainID, Type: txType, Nonce: p.Nonce}
	if strings.TrimSpace(p.To) != "" {
		to, err := parseAddress(p.To)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		tx.To = to[:]
	}
	if strings.TrimSpace(p.Value) != "" {
		value, err := parseAmount(p.Value)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		tx.Value = value
	}
	if p.Data != "" {
		tx.Data = []byte(p.Data)
	}
	for _, part := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{{"r", p.R, &tx.R}, {"s", p.S, &tx.S}, {"v", p.V, &tx.V}} {
		value, ok := new(big.Int).SetString(strings.TrimPrefix(strings.TrimSpace(part.raw), "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("signature %s: invalid hex", part.name)
		}
		*part.dst = value
	}
	return tx, nil
}

func parseTxType(raw string) (types.TxType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for t := types.TxTypeRegisterRestaurant; t <= types.TxTypeTransfer; t++ {
		if t.String() == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction type %q", raw)
}

// ReceiptResult reflects the final state of a committed transaction.
type ReceiptResult struct {
	TransactionHash string         `json:"transactionHash"`
	Sender          string         `json:"sender"`
	Type            string         `json:"type"`
	Nonce           uint64         `json:"nonce"`
	Timestamp       uint64         `json:"timestamp"`
	Events          []*types.Event `json:"events"`
}

func receiptResult(r *types.Receipt) ReceiptResult {
	events := r.Events
	if events == nil {
		events = []*types.Event{}
	}
	return ReceiptResult{
		TransactionHash: "0x" + hex.EncodeToString(r.TxHash),
		Sender:          formatAddress(r.Sender),
		Type:            r.Type.String(),
		Nonce:           r.Nonce,
		Timestamp:       r.Timestamp,
		Events:          events,
	}
}

// RestaurantResult describes a registry entry.
type RestaurantResult struct {
	Address      string `json:"address"`
	PlaceID      string `json:"placeId"`
	Registered   bool   `json:"registered"`
	Sequence     uint64 `json:"sequence,omitempty"`
	RegisteredAt uint64 `json:"registeredAt,omitempty"`
}

func restaurantResult(addr [20]byte, r *discount.Restaurant) RestaurantResult {
	return RestaurantResult{
		Address:      formatAddress(addr[:]),
		PlaceID:      r.PlaceID,
		Registered:   r.Registered,
		Sequence:     r.Sequence,
		RegisteredAt: r.RegisteredAt,
	}
}

// RatioResult is one entry of dine_getRestaurantsByRatio.
type RatioResult struct {
	Address string `json:"address"`
	PlaceID string `json:"placeId"`
	Ratio   string `json:"ratio"`
	Display string `json:"display"`
}

// QuoteResult previews the settlement of a payment.
type QuoteResult struct {
	Restaurant      string `json:"restaurant"`
	RequestedAmount string `json:"requestedAmount"`
	RecentVolume    string `json:"recentVolume"`
	CustomRatio     string `json:"customRatio"`
	AdjustedAmount  string `json:"adjustedAmount"`
}

// ParamsResult exposes the immutable ledger configuration.
type ParamsResult struct {
	ChainID     uint64 `json:"chainId"`
	Owner       string `json:"owner"`
	Spender     string `json:"spender"`
	Token       string `json:"token"`
	Decimals    uint8  `json:"decimals"`
	BaseRatio   string `json:"baseRatio"`
	DecayFactor string `json:"decayFactor"`
	MinRatio    string `json:"minRatio"`
	TimeWindow  uint64 `json:"timeWindow"`
}

// TokenResult describes the settlement token.
type TokenResult struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// ListPaymentsParams pages through indexed payments.
type ListPaymentsParams struct {
	Restaurant string `json:"restaurant,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// PaymentResult is one indexed payment.
type PaymentResult struct {
	ID             string `json:"id"`
	Payer          string `json:"payer"`
	Restaurant     string `json:"restaurant"`
	OriginalAmount string `json:"originalAmount"`
	AdjustedAmount string `json:"adjustedAmount"`
	CustomRatio    string `json:"customRatio"`
	Timestamp      int64  `json:"timestamp"`
}

// PaymentsResult wraps a page of payments.
type PaymentsResult struct {
	Total    int64           `json:"total"`
	Payments []PaymentResult `json:"payments"`
}

// RegistrationResult is one indexed register or remove event.
type RegistrationResult struct {
	ID         string `json:"id"`
	Restaurant string `json:"restaurant"`
	PlaceID    string `json:"placeId,omitempty"`
	Action     string `json:"action"`
	Sequence   uint64 `json:"sequence,omitempty"`
	Caller     string `json:"caller,omitempty"`
	RecordedAt int64  `json:"recordedAt"`
}

// StreamEventPayload is one message on /ws/events.
type StreamEventPayload struct {
	Cursor    string            `json:"cursor"`
	TxHash    string            `json:"txHash"`
	Timestamp uint64            `json:"timestamp"`
	Type      string            `json:"type"`
	Attrs     map[string]string `json:"attributes"`
}

func streamEventPayload(evt core.StreamEvent) StreamEventPayload {
	payload := StreamEventPayload{
		Cursor:    evt.Cursor,
		TxHash:    "0x" + hex.EncodeToString(evt.TxHash),
		Timestamp: evt.Timestamp,
	}
	if evt.Event != nil {
		payload.Type = evt.Event.Type
		payload.Attrs = evt.Event.Attributes
	}
	return payload
}

// hexBig formats a big integer as a 0x-prefixed hexadecimal string.
func hexBig(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}

func formatAddress(b []byte) string {
	if len(b) != 20 {
		return ""
	}
	return crypto.MustNewAddress(crypto.DinePrefix, b).String()
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}
