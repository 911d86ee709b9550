package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// apiKeyBytes yields a 48-character hex token, above the 32-character
// minimum required for API key secrets.
const apiKeyBytes = 24

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateAPIKey generates a random API key token
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, apiKeyBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// TruncateContractID returns the first 8 characters of a contract identifier
// for use as a metric label, or "unknown" when the identifier is empty.
func TruncateContractID(contractID string) string {
	if contractID == "" {
		return "unknown"
	}
	if len(contractID) <= 8 {
		return contractID
	}
	return contractID[:8]
}
