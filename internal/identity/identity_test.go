package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPrefersPersistedToken(t *testing.T) {
	id := Identity{Token: "tok", AddressHash: "hash"}
	assert.Equal(t, "tok", id.Key())
}

func TestKeyFallsBackToAddressHash(t *testing.T) {
	id := Identity{AddressHash: "hash"}
	assert.Equal(t, "hash", id.Key())
}

func TestHashAddressIsStableAndKeyed(t *testing.T) {
	a := HashAddress("secret", "203.0.113.7")
	b := HashAddress("secret", "203.0.113.7")
	assert.Equal(t, a, b, "same address and secret always hash alike")

	assert.NotEqual(t, a, HashAddress("secret", "203.0.113.8"))
	assert.NotEqual(t, a, HashAddress("other-secret", "203.0.113.7"))
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "203.0.113.7", "raw address never appears in the hash")
}
