//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// sections mirrors config.yaml: one mapping per dotted-key prefix, so
// "server.port" lives at server: {port: ...}.
type sections map[string]map[string]any

// yamlBackend stores settings in $XDG_CONFIG_HOME/gravity/config.yaml.
type yamlBackend struct {
	path string
	doc  sections
}

func newPlatformBackend() ConfigBackend {
	return openYAMLBackend(configFilePath())
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "gravity", "config.yaml")
}

// openYAMLBackend reads path. A missing file is an empty config; an
// unreadable one is reported on stderr and treated the same way.
func openYAMLBackend(path string) *yamlBackend {
	b := &yamlBackend{path: path, doc: sections{}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		var doc sections
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
		} else if doc != nil {
			b.doc = doc
		}
	}
	return b
}

func splitKey(key string) (section, name string) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return "", key
	}
	return section, name
}

func (b *yamlBackend) lookup(key string) (any, bool) {
	section, name := splitKey(key)
	v, ok := b.doc[section][name]
	return v, ok
}

func (b *yamlBackend) store(key string, v any) error {
	section, name := splitKey(key)
	if b.doc[section] == nil {
		b.doc[section] = map[string]any{}
	}
	b.doc[section][name] = v
	return writeYAMLFile(b.path, b.doc)
}

func (b *yamlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok || v == nil {
		return "", false, nil
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *yamlBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt || n > math.MaxInt {
			return 0, true, fmt.Errorf("%s: %v is not a whole number", key, n)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return i, true, nil
	}
	return 0, true, fmt.Errorf("%s: unexpected %T", key, v)
}

func (b *yamlBackend) SetString(key, val string) error { return b.store(key, val) }

func (b *yamlBackend) SetInt(key string, val int) error { return b.store(key, val) }

func (b *yamlBackend) Delete(key string) error {
	section, name := splitKey(key)
	if _, ok := b.doc[section][name]; !ok {
		return nil
	}
	delete(b.doc[section], name)
	if len(b.doc[section]) == 0 {
		delete(b.doc, section)
	}
	return writeYAMLFile(b.path, b.doc)
}
