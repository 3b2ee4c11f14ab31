package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"dinechain/core/events"
)

var (
	ErrInsufficientBalance   = errors.New("bank: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInvalidAmount         = errors.New("bank: amount must not be negative")
	ErrTokenNotConfigured    = errors.New("bank: token metadata not configured")
)

var (
	metadataKey      = []byte("bank/token/meta")
	supplyKey        = []byte("bank/token/supply")
	balancePrefix    = "bank/balance/"
	allowancePrefix  = "bank/allowance/"
	defaultDecimals  = uint8(6)
	defaultTokenName = "Tether USD"
)

// TokenMetadata describes the settlement token.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// State captures the key/value access the token ledger needs from the
// surrounding state implementation.
type State interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Emit(events.Event)
}

// Reader is the read-only subset of State used by queries.
type Reader interface {
	KVGet(key []byte, out interface{}) (bool, error)
}

// Token is an ERC20-style fungible token ledger with pull-based allowances.
// Balances live in chain state; Token itself holds no mutable data.
type Token struct{}

// NewToken returns the settlement token ledger.
func NewToken() *Token { return &Token{} }

func balanceKey(addr [20]byte) []byte {
	return append([]byte(balancePrefix), addr[:]...)
}

func allowanceKey(owner, spender [20]byte) []byte {
	key := make([]byte, 0, len(allowancePrefix)+41)
	key = append(key, allowancePrefix...)
	key = append(key, owner[:]...)
	key = append(key, ':')
	return append(key, spender[:]...)
}

// Configure stores the token metadata. It is called once from genesis.
func (t *Token) Configure(st State, meta TokenMetadata) error {
	meta.Symbol = strings.ToUpper(strings.TrimSpace(meta.Symbol))
	if meta.Symbol == "" {
		return fmt.Errorf("bank: token symbol required")
	}
	if strings.TrimSpace(meta.Name) == "" {
		meta.Name = defaultTokenName
	}
	if meta.Decimals == 0 {
		meta.Decimals = defaultDecimals
	}
	return st.KVPut(metadataKey, &meta)
}

// Metadata returns the configured token metadata.
func (t *Token) Metadata(st Reader) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	ok, err := st.KVGet(metadataKey, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotConfigured
	}
	return meta, nil
}

func (t *Token) symbol(st Reader) string {
	meta, err := t.Metadata(st)
	if err != nil {
		return ""
	}
	return meta.Symbol
}

// TotalSupply returns the amount minted so far.
func (t *Token) TotalSupply(st Reader) (*big.Int, error) {
	return loadAmount(st, supplyKey)
}

// Balance returns the token balance of addr.
func (t *Token) Balance(st Reader, addr [20]byte) (*big.Int, error) {
	return loadAmount(st, balanceKey(addr))
}

// Allowance returns how much spender may still pull from owner.
func (t *Token) Allowance(st Reader, owner, spender [20]byte) (*big.Int, error) {
	return loadAmount(st, allowanceKey(owner, spender))
}

// Mint credits amount to addr and grows the total supply.
func (t *Token) Mint(st State, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := t.Balance(st, to)
	if err != nil {
		return err
	}
	supply, err := t.TotalSupply(st)
	if err != nil {
		return err
	}
	if err := st.KVPut(balanceKey(to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	if err := st.KVPut(supplyKey, new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	st.Emit(events.TokenTransfer{Asset: t.symbol(st), To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from the caller to another account.
func (t *Token) Transfer(st State, from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return t.move(st, from, to, amount)
}

// Approve sets the allowance of spender over owner's balance, replacing any
// previous value.
func (t *Token) Approve(st State, owner, spender [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := st.KVPut(allowanceKey(owner, spender), new(big.Int).Set(amount)); err != nil {
		return err
	}
	st.Emit(events.TokenApproval{Asset: t.symbol(st), Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// TransferFrom pulls amount from `from` to `to` on behalf of spender,
// consuming the allowance from first.
func (t *Token) TransferFrom(st State, spender, from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := t.Allowance(st, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := t.move(st, from, to, amount); err != nil {
		return err
	}
	return st.KVPut(allowanceKey(from, spender), new(big.Int).Sub(allowance, amount))
}

func (t *Token) move(st State, from, to [20]byte, amount *big.Int) error {
	fromBalance, err := t.Balance(st, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if amount.Sign() == 0 || from == to {
		st.Emit(events.TokenTransfer{Asset: t.symbol(st), From: from, To: to, Amount: new(big.Int).Set(amount)})
		return nil
	}
	toBalance, err := t.Balance(st, to)
	if err != nil {
		return err
	}
	if err := st.KVPut(balanceKey(from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := st.KVPut(balanceKey(to), new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	st.Emit(events.TokenTransfer{Asset: t.symbol(st), From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func loadAmount(st Reader, key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := st.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}
