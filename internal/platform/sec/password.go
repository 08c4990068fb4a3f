// Copyright (c) 2026 Veridian Labs. All rights reserved.

/*
Package sec provides the cryptographic primitives of the identity core.

It isolates security-sensitive code (key derivation, API key hashing, JWT
signing) from the domain logic. It acts as an Infrastructure service injected
into the Application layer via narrow interfaces.

# Review Process

This package is critical for security. Any change to hashing parameters,
encoding formats, or comparison logic must be reviewed by the security team.
*/
package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// # Key Derivation Parameters

const (
	// passwordAlgorithm identifies the KDF in the encoded hash, so stored
	// hashes remain verifiable after future algorithm or parameter changes.
	passwordAlgorithm = "pbkdf2-sha256"

	// passwordIterations is the PBKDF2 iteration count for NEW hashes.
	// Verification always uses the count stored inside the hash itself.
	passwordIterations = 150_000

	// passwordSaltLength is the per-password random salt size in bytes.
	passwordSaltLength = 16

	// passwordKeyLength is the derived key size in bytes.
	passwordKeyLength = 32
)

// ErrCorruptCredential reports a stored password hash that cannot be parsed.
// It is fatal and internal-only: callers log it and treat the verification
// as failed, never exposing the corruption to the client.
var ErrCorruptCredential = errors.New("sec: corrupt stored credential")

// HashPassword derives a key from the plain-text password using PBKDF2-SHA256
// with a fresh random salt.
//
// # Encoding
//
// The result is self-describing: "pbkdf2-sha256$<iterations>$<salt>$<key>"
// with salt and key in unpadded base64url. Bumping passwordIterations later
// does not invalidate existing hashes.
func HashPassword(plainTextPassword string) (string, error) {
	salt := make([]byte, passwordSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sec: failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(plainTextPassword), salt, passwordIterations, passwordKeyLength, sha256.New)

	encoded := strings.Join([]string{
		passwordAlgorithm,
		strconv.Itoa(passwordIterations),
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key),
	}, "$")

	return encoded, nil
}

// VerifyPassword re-derives the key using the parameters stored in the
// encoded hash and compares digests in constant time.
//
// A malformed stored hash returns (false, [ErrCorruptCredential]); a clean
// mismatch returns (false, nil). Both read as "invalid" at the boundary.
func VerifyPassword(plainTextPassword, encodedHash string) (bool, error) {
	algorithm, iterations, salt, expectedKey, err := decodePasswordHash(encodedHash)
	if err != nil {
		return false, err
	}

	if algorithm != passwordAlgorithm {
		return false, fmt.Errorf("%w: unknown algorithm %q", ErrCorruptCredential, algorithm)
	}

	derivedKey := pbkdf2.Key([]byte(plainTextPassword), salt, iterations, len(expectedKey), sha256.New)

	// subtle.ConstantTimeCompare has no early exit on byte mismatch.
	return subtle.ConstantTimeCompare(derivedKey, expectedKey) == 1, nil
}

// decodePasswordHash splits and decodes the self-describing hash format.
func decodePasswordHash(encoded string) (algorithm string, iterations int, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 {
		return "", 0, nil, nil, fmt.Errorf("%w: expected 4 segments, got %d", ErrCorruptCredential, len(parts))
	}

	iterations, convErr := strconv.Atoi(parts[1])
	if convErr != nil || iterations <= 0 {
		return "", 0, nil, nil, fmt.Errorf("%w: bad iteration count %q", ErrCorruptCredential, parts[1])
	}

	salt, saltErr := base64.RawURLEncoding.DecodeString(parts[2])
	if saltErr != nil || len(salt) == 0 {
		return "", 0, nil, nil, fmt.Errorf("%w: undecodable salt", ErrCorruptCredential)
	}

	key, keyErr := base64.RawURLEncoding.DecodeString(parts[3])
	if keyErr != nil || len(key) == 0 {
		return "", 0, nil, nil, fmt.Errorf("%w: undecodable derived key", ErrCorruptCredential)
	}

	return parts[0], iterations, salt, key, nil
}
