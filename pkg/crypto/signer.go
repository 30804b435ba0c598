package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	// ErrNoSigningKey signing attempted without a key
	ErrNoSigningKey = errors.New("no signing key")

	// ErrInvalidSignature signature does not verify against the key
	ErrInvalidSignature = errors.New("invalid signature")
)

// SigningKey secp256k1 private key used for receipt and result signatures
type SigningKey struct {
	key *secp256k1.PrivateKey
}

// GenerateSigningKey creates a fresh random key
func GenerateSigningKey() (*SigningKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}
	return &SigningKey{key: key}, nil
}

// ParseSigningKey decodes a hex-encoded 32-byte private key
func ParseSigningKey(hexKey string) (*SigningKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signing key is not hex: %w", err)
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", secp256k1.PrivKeyBytesLen, len(raw))
	}
	return &SigningKey{key: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// Hex returns the hex-encoded private key
func (k *SigningKey) Hex() string {
	return hex.EncodeToString(k.key.Serialize())
}

// VerificationKey returns the hex-encoded compressed public key
func (k *SigningKey) VerificationKey() string {
	return hex.EncodeToString(k.key.PubKey().SerializeCompressed())
}

// Sign hashes message with SHA-256 and returns the base64 DER signature of the digest
func (k *SigningKey) Sign(message []byte) (string, error) {
	if k == nil || k.key == nil {
		return "", ErrNoSigningKey
	}
	sig := ecdsa.Sign(k.key, MessageHash(message))
	return base64.StdEncoding.EncodeToString(sig.Serialize()), nil
}

// Verify checks a base64 DER signature over SHA-256(message) against a hex compressed public key
func Verify(verificationKey string, message []byte, signature string) error {
	rawKey, err := hex.DecodeString(verificationKey)
	if err != nil {
		return fmt.Errorf("verification key is not hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(rawKey)
	if err != nil {
		return fmt.Errorf("invalid verification key: %w", err)
	}
	rawSig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signature is not base64: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(rawSig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !sig.Verify(MessageHash(message), pub) {
		return ErrInvalidSignature
	}
	return nil
}
