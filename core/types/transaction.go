package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeRegisterRestaurant TxType = 0x01 // Caller registers itself under a place id (Data)
	TxTypeRemoveRestaurant   TxType = 0x02 // Admin removes the restaurant at To
	TxTypePay                TxType = 0x03 // Caller pays Value to the restaurant at To
	TxTypeApprove            TxType = 0x04 // Caller approves To to spend Value
	TxTypeTransfer           TxType = 0x05 // Caller transfers Value to To
)

var ErrInvalidSignature = errors.New("types: invalid transaction signature")

// String returns the wire label for the transaction type.
func (t TxType) String() string {
	switch t {
	case TxTypeRegisterRestaurant:
		return "register_restaurant"
	case TxTypeRemoveRestaurant:
		return "remove_restaurant"
	case TxTypePay:
		return "pay"
	case TxTypeApprove:
		return "approve"
	case TxTypeTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	return t >= TxTypeRegisterRestaurant && t <= TxTypeTransfer
}

// Transaction is a signed state mutation submitted by a wallet.
type Transaction struct {
	ChainID uint64   `json:"chainId"`
	Type    TxType   `json:"type"`
	Nonce   uint64   `json:"nonce"`
	To      []byte   `json:"to,omitempty"`
	Value   *big.Int `json:"value,omitempty"`
	Data    []byte   `json:"data,omitempty"`

	// Signature
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

type unsignedTx struct {
	ChainID uint64
	Type    TxType
	Nonce   uint64
	To      []byte
	Value   *big.Int
	Data    []byte
}

func (tx *Transaction) unsigned() unsignedTx {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	return unsignedTx{ChainID: tx.ChainID, Type: tx.Type, Nonce: tx.Nonce, To: tx.To, Value: value, Data: tx.Data}
}

// Hash returns the keccak256 digest of the RLP encoding of the unsigned
// transaction fields, chain id included. The digest is what the sender signs.
func (tx *Transaction) Hash() ([]byte, error) {
	if tx.Value != nil && tx.Value.Sign() < 0 {
		return nil, fmt.Errorf("types: negative value")
	}
	encoded, err := rlp.EncodeToBytes(tx.unsigned())
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// Sign signs the transaction with the supplied key.
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the 20-byte sender address from the signature.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return nil, ErrInvalidSignature
	}
	if len(tx.R.Bytes()) > 32 || len(tx.S.Bytes()) > 32 || !tx.V.IsUint64() || tx.V.Uint64() < 27 || tx.V.Uint64() > 28 {
		return nil, ErrInvalidSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(tx.R.Bytes()):32], tx.R.Bytes())
	copy(sig[64-len(tx.S.Bytes()):64], tx.S.Bytes())
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	tx.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return tx.from, nil
}
