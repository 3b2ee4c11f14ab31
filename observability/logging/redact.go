package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces secret values in ledger logs.
const Redacted = "[REDACTED]"

// ledgerKeys are the attribute keys the node writes with public ledger or
// request metadata. Any other key passed to Mask is treated as a secret.
var ledgerKeys = map[string]struct{}{
	"method":     {},
	"request_id": {},
	"code":       {},
	"error":      {},
	"remote":     {},
	"tx_hash":    {},
	"tx_type":    {},
	"payer":      {},
	"restaurant": {},
	"place_id":   {},
	"chain_id":   {},
	"nonce":      {},
}

// Public reports whether key carries ledger metadata that may be logged as is.
func Public(key string) bool {
	_, ok := ledgerKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Mask renders key with its value when the key is public and with Redacted
// otherwise. Empty values are kept so absent settings stay visible.
func Mask(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || Public(key) {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}

// MaskAuthorization keeps the scheme of an Authorization header, so operators
// can tell a bearer token from basic auth, and hides the credential.
func MaskAuthorization(header string) string {
	scheme, _, found := strings.Cut(strings.TrimSpace(header), " ")
	switch {
	case scheme == "":
		return ""
	case !found:
		return Redacted
	}
	return scheme + " " + Redacted
}
