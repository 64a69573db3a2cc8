//go:build darwin

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultsDomain = "au.id.dropbear.gravity"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gravity-data"
	}
	return filepath.Join(home, "Library", "Application Support", "gravity")
}

// userDefaults stores settings in the macOS defaults database.
type userDefaults string

func newPlatformBackend() ConfigBackend {
	return userDefaults(defaultsDomain)
}

// run invokes the defaults tool against the domain. A missing key makes
// `defaults read` exit 1, reported here as errMissingDefault.
func (d userDefaults) run(verb, key string, extra ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	args := append([]string{verb, string(d), key}, extra...)
	out, err := exec.CommandContext(ctx, "defaults", args...).CombinedOutput()
	text := strings.TrimSpace(string(out))

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return text, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && verb != "write":
		return "", errMissingDefault
	default:
		return "", fmt.Errorf("defaults %s %s: %w (%s)", verb, key, err, text)
	}
}

var errMissingDefault = errors.New("default not set")

func (d userDefaults) GetString(key string) (string, bool, error) {
	v, err := d.run("read", key)
	if errors.Is(err, errMissingDefault) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (d userDefaults) GetInt(key string) (int, bool, error) {
	v, ok, err := d.GetString(key)
	if !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

func (d userDefaults) SetString(key, val string) error {
	_, err := d.run("write", key, "-string", val)
	return err
}

func (d userDefaults) SetInt(key string, val int) error {
	_, err := d.run("write", key, "-int", strconv.Itoa(val))
	return err
}

func (d userDefaults) Delete(key string) error {
	if _, err := d.run("delete", key); err != nil && !errors.Is(err, errMissingDefault) {
		return err
	}
	return nil
}
