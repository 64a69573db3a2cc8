//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// secretFile holds secrets by service, then account. Without a system
// keyring it lives in the data dir with owner-only permissions.
type secretFile map[string]map[string]string

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.yaml")
}

func loadSecrets(path string) (secretFile, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return secretFile{}, nil
	}
	if err != nil {
		return nil, err
	}
	secrets := secretFile{}
	if err := yaml.Unmarshal(raw, &secrets); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return secrets, nil
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := loadSecrets(secretsFilePath())
	if err != nil {
		return nil, err
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret for %s/%s", service, account)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	path := secretsFilePath()
	secrets, err := loadSecrets(path)
	if err != nil {
		// An unreadable store is replaced rather than blocking token creation.
		secrets = secretFile{}
	}
	if secrets[service] == nil {
		secrets[service] = map[string]string{}
	}
	secrets[service][account] = value
	return writeYAMLFile(path, secrets)
}
