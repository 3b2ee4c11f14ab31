package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const hashHexLength = 64

// ParseHash normalises a 0x-prefixed or bare hex transaction hash and returns
// the raw 32 bytes.
func ParseHash(ref string) ([32]byte, error) {
	var hash [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return hash, fmt.Errorf("tx hash required")
	}
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(trimmed) != hashHexLength {
		return hash, fmt.Errorf("tx hash must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return hash, fmt.Errorf("decode tx hash: %w", err)
	}
	copy(hash[:], decoded)
	return hash, nil
}
