package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

const (
	secretService = "gravity"
	tokenAccount  = "api_token"
)

// GetAPIToken returns the bearer token guarding the local API.
// GRAVITY_API_TOKEN wins; otherwise the secret store is consulted and a new
// token is generated and saved on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if v := os.Getenv("GRAVITY_API_TOKEN"); v != "" {
		return v, nil
	}

	if v, err := kc.Get(secretService, tokenAccount); err == nil && v != "" {
		return v, nil
	}

	token := uuid.NewString()
	if err := kc.Set(secretService, tokenAccount, token); err != nil {
		return "", fmt.Errorf("saving api token: %w", err)
	}
	return token, nil
}
