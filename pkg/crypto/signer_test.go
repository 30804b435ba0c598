package crypto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	message := []byte("wo1" + "2" + "deadbeef")
	signature, err := key.Sign(message)
	require.NoError(t, err)
	assert.NotEmpty(t, signature)

	assert.NoError(t, Verify(key.VerificationKey(), message, signature))
	assert.ErrorIs(t, Verify(key.VerificationKey(), []byte("tampered"), signature), ErrInvalidSignature)

	other, err := GenerateSigningKey()
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(other.VerificationKey(), message, signature), ErrInvalidSignature)
}

func TestParseSigningKey_RoundTrip(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	parsed, err := ParseSigningKey(key.Hex())
	require.NoError(t, err)
	assert.Equal(t, key.VerificationKey(), parsed.VerificationKey())
	// compressed SEC1 public key
	assert.Len(t, parsed.VerificationKey(), 66)
}

func TestParseSigningKey_Invalid(t *testing.T) {
	_, err := ParseSigningKey("not-hex")
	assert.Error(t, err)

	_, err = ParseSigningKey("abcd")
	assert.Error(t, err)
}

func TestSign_NoKey(t *testing.T) {
	var key *SigningKey
	_, err := key.Sign([]byte("x"))
	assert.True(t, errors.Is(err, ErrNoSigningKey))
}

func TestVerify_MalformedInputs(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	assert.Error(t, Verify("zz", []byte("m"), "AAAA"))
	assert.Error(t, Verify("abcd", []byte("m"), "AAAA"))
	assert.Error(t, Verify(key.VerificationKey(), []byte("m"), "%%%"))
	assert.ErrorIs(t, Verify(key.VerificationKey(), []byte("m"), "AAAA"), ErrInvalidSignature)
}
