// Copyright (c) 2026 Veridian Labs. All rights reserved.

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// # Opaque Tokens

// GenerateSecureToken produces a cryptographically random opaque token of
// byteLength random bytes, encoded as unpadded base64url.
//
// Used for refresh tokens and password-reset tokens. These are high-entropy
// secrets, so a single fast hash (not an iterated KDF) suffices for storage.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a token. Only the
// digest is ever persisted; a database leak does not leak usable tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether the plaintext token matches the stored digest,
// comparing in constant time.
func VerifyToken(token, storedHash string) bool {
	computed := HashToken(token)
	if len(computed) != len(storedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// # Tenant API Keys

const (
	// apiKeyByteLength gives each API key 256 bits of entropy.
	apiKeyByteLength = 32

	// apiKeyPrefix makes leaked keys greppable in logs and repositories.
	apiKeyPrefix = "vk_"
)

// GenerateAPIKey produces a new tenant API key.
//
// # Contract
//
// The plaintext is returned exactly once, at creation or rotation; only the
// hashed form is ever stored. The caller must hand the plaintext to the
// tenant operator and forget it.
func GenerateAPIKey() (hashedForm, plaintextOnce string, err error) {
	secret, err := GenerateSecureToken(apiKeyByteLength)
	if err != nil {
		return "", "", err
	}
	plaintextOnce = apiKeyPrefix + secret
	return HashToken(plaintextOnce), plaintextOnce, nil
}

// VerifyAPIKey recomputes the hash of the presented plaintext key and
// compares it against the stored form in constant time.
func VerifyAPIKey(plaintext, hashedForm string) bool {
	if !strings.HasPrefix(plaintext, apiKeyPrefix) {
		return false
	}
	return VerifyToken(plaintext, hashedForm)
}
