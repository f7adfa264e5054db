package service

import (
	"crypto/rand"
	"encoding/hex"
)

// randomToken generates a random hexadecimal string of n*2 characters.  It
// backs outbox event IDs and payment order numbers; crypto/rand keeps them
// unguessable.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
