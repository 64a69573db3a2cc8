package config

import (
	"strings"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Host       HostConfig
	AppMessage AppMessageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type HostConfig struct {
	// Launcher is "browser" or "none".
	Launcher string
}

type AppMessageConfig struct {
	// KeysFile is a YAML app key manifest; empty uses the built-in layout.
	KeysFile string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Host: HostConfig{
			Launcher: "none",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: au.id.dropbear.gravity).
// Elsewhere the backend is a YAML file at $XDG_CONFIG_HOME/gravity/config.yaml,
// with one section per key prefix.
//
// Environment variables (GRAVITY_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Keychain is a secret store keyed by service and account.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// keychainStore reads and writes the platform secret store.
type keychainStore struct{}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return keychainStore{}
}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
