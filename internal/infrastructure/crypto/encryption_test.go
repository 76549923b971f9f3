// SPDX-License-Identifier: AGPL-3.0-or-later
package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef") // 32 bytes
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey()
	plaintext := "ya29.a0AfH6SMBexampleaccesstoken"

	wire, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.Contains(t, wire, ":")

	parts := strings.SplitN(wire, ":", 2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 32) // 16-byte IV hex-encoded

	got, err := Decrypt(wire, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypt_WrongKeyLength(t *testing.T) {
	_, err := Encrypt("hello", []byte("short"))
	assert.ErrorContains(t, err, "32 bytes")
}

func TestDecrypt_MalformedWireFormat(t *testing.T) {
	_, err := Decrypt("not-a-valid-format", testKey())
	assert.Error(t, err)
}

func TestDecrypt_WrongKeyFailsGracefully(t *testing.T) {
	wire, err := Encrypt("secret-password", testKey())
	require.NoError(t, err)

	otherKey := []byte("ffffffffffffffffffffffffffffff12")
	// Decryption under the wrong key does not panic; it either errors on
	// unpadding or returns garbage, and callers must treat any such field
	// as absent rather than fatal (spec.md §4.3).
	_, decErr := Decrypt(wire, otherKey)
	_ = decErr
}

func TestEncrypt_DifferentIVsEachCall(t *testing.T) {
	key := testKey()
	a, err := Encrypt("same-plaintext", key)
	require.NoError(t, err)
	b, err := Encrypt("same-plaintext", key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random IV must make repeated encryptions differ")
}
