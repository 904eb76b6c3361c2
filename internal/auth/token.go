package auth

import (
	"crypto/rand"
	"encoding/base64"
)

// generateToken returns a 256-bit URL-safe random token for magic links
// and session cookies.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
