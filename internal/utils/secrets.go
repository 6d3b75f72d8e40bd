package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random hex secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DeploymentSecrets are the secrets a new environment needs
type DeploymentSecrets struct {
	JWTSecret             string
	FlutterwaveSecretHash string
}

// GenerateDeploymentSecrets generates the JWT signing secret and the
// Flutterwave webhook hash
func GenerateDeploymentSecrets() (*DeploymentSecrets, error) {
	jwtSecret, err := GenerateSecret(32) // 256-bit
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}

	webhookHash, err := GenerateSecret(24)
	if err != nil {
		return nil, fmt.Errorf("failed to generate webhook hash: %w", err)
	}

	return &DeploymentSecrets{
		JWTSecret:             jwtSecret,
		FlutterwaveSecretHash: webhookHash,
	}, nil
}
