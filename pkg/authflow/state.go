package authflow

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateStateToken generates a cryptographically secure CSRF state token.
// The token doubles as the pending-flow correlation key, so it carries 256
// bits of entropy; a collision here is a security failure.
func GenerateStateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
