package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateWebhookSecret returns a 256-bit signing secret, hex encoded with
// a recognisable prefix.
func GenerateWebhookSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
