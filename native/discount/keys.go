package discount

import (
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	configKey     = []byte("discount/config")
	sequenceKey   = []byte("discount/sequence")
	registryKey   = []byte("discount/registry")
	recordPrefix  = "discount/restaurant/"
	historyPrefix = "discount/history/"
	placePrefix   = "discount/place/"
)

// ModuleAddress is the spender payers approve before calling Pay. The ledger
// pulls funds from the payer straight to the restaurant and never holds any.
var ModuleAddress = func() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("module/discount"))[12:])
	return out
}()

func recordKey(addr [20]byte) []byte {
	return append([]byte(recordPrefix), addr[:]...)
}

func historyKey(addr [20]byte) []byte {
	return append([]byte(historyPrefix), addr[:]...)
}

func placeKey(placeID string) []byte {
	return []byte(placePrefix + strings.TrimSpace(placeID))
}
