package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashPin produces the lowercase hex SHA-256 digest of the PIN. The mobile
// and web clients compute the same digest, so the output must stay
// byte-for-byte stable across environments.
func HashPin(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// ExtractBearerToken returns the token following a case-sensitive "Bearer "
// prefix. A missing header, wrong prefix, or empty remainder all report false.
func ExtractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", false
	}
	return token, true
}
