package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters; the 64-byte output matches the stored hash width
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
)

// ConstantTimeHexEqual compares two hex strings without short-circuiting.
// Malformed hex is never equal to anything.
func ConstantTimeHexEqual(a, b string) bool {
	aBuf, err := hex.DecodeString(a)
	if err != nil {
		return false
	}
	bBuf, err := hex.DecodeString(b)
	if err != nil {
		return false
	}

	if len(aBuf) != len(bBuf) {
		// Burn the same time as a real comparison of a's length
		subtle.ConstantTimeCompare(aBuf, make([]byte, len(aBuf)))
		return false
	}

	return subtle.ConstantTimeCompare(aBuf, bBuf) == 1
}

// HMACSign returns the hex HMAC-SHA256 of message under key
func HMACSign(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// DeriveKeyHash derives the hex scrypt hash of secret with the given salt
func DeriveKeyHash(secret, salt string) (string, error) {
	derived, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to derive key hash: %w", err)
	}
	return hex.EncodeToString(derived), nil
}

// VerifyKeyHash reports whether secret hashes to expectedHash under salt.
// Any derivation failure counts as a mismatch.
func VerifyKeyHash(secret, salt, expectedHash string) bool {
	computed, err := DeriveKeyHash(secret, salt)
	if err != nil {
		return false
	}
	return ConstantTimeHexEqual(computed, expectedHash)
}

// RandomToken returns nBytes of crypto/rand output, hex encoded
func RandomToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", fmt.Errorf("invalid token length %d", nBytes)
	}
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SHA256Hex returns the hex SHA-256 digest of s
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
