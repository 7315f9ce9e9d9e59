package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HashToken returns the hex SHA-256 of a high-entropy secret (refresh token, OTP
// challenge) for storage and comparison without keeping the raw value.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual reports in constant time whether provided hashes to storedHash.
func TokenHashEqual(provided, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(provided)), []byte(storedHash)) == 1
}

// Equal is a constant-time comparison of two secrets.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateDigits returns n random decimal digits (OTP codes, backup codes).
func GenerateDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("security: digit count must be positive")
	}
	out := make([]byte, n)
	var buf [1]byte
	for i := 0; i < n; {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		// Reject 250..255 so every digit is equally likely.
		if buf[0] >= 250 {
			continue
		}
		out[i] = '0' + buf[0]%10
		i++
	}
	return string(out), nil
}
