package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// GenerateStateToken creates a random single-use token that correlates a
// browser redirect with its provider callback.
func GenerateStateToken() (string, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

// GenerateOrderRef creates a merchant-side order reference for a
// verification request. The account id is embedded so provider-side logs
// can be traced back to an account.
func GenerateOrderRef(accountID uint64) (string, error) {
	suffix := make([]byte, 4)
	if _, err := io.ReadFull(rand.Reader, suffix); err != nil {
		return "", fmt.Errorf("generate order ref: %w", err)
	}
	return fmt.Sprintf("VERIFY_%d_%s", accountID, hex.EncodeToString(suffix)), nil
}
