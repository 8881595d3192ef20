// Package identity derives a stable visitor handle for quota accounting
// without requiring account authentication.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Identity keys quota state for a caller. Token is a persisted client-side
// identifier and is preferred when present; AddressHash is an HMAC of the
// client network address and always exists. Neither is globally unique
// across devices.
type Identity struct {
	Token       string
	AddressHash string
}

// Key returns the handle used for ledger lookups, preferring the persisted
// token over the address fallback.
func (id Identity) Key() string {
	if id.Token != "" {
		return id.Token
	}
	return id.AddressHash
}

// HashAddress hashes a network address with a server-held secret so raw
// addresses never reach storage or logs.
func HashAddress(secret, addr string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(addr))
	return hex.EncodeToString(mac.Sum(nil))
}
