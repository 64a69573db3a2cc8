package appmessage

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultAppUUID identifies the Gravity watch face.
const DefaultAppUUID = "7b4e8933-1e3f-4b57-be13-d07d76b61417"

// Manifest maps payload field names to the integer keys the watch app understands.
type Manifest struct {
	UUID    string            `yaml:"uuid"`
	AppKeys map[string]uint32 `yaml:"app_keys"`
}

// DefaultManifest returns the key layout compiled into the watch face.
func DefaultManifest() Manifest {
	return Manifest{
		UUID:    DefaultAppUUID,
		AppKeys: map[string]uint32{"facestyle": 0},
	}
}

// LoadManifest reads a YAML manifest. An empty path returns DefaultManifest.
// A manifest without a uuid inherits the default one.
func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.UUID == "" {
		m.UUID = DefaultAppUUID
	}
	if _, err := m.AppUUID(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// AppUUID parses the manifest's app UUID.
func (m Manifest) AppUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(m.UUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid app uuid %q: %w", m.UUID, err)
	}
	return id, nil
}

// Key resolves a field name. Names missing from the manifest are accepted
// when they are themselves numeric keys.
func (m Manifest) Key(name string) (uint32, error) {
	if k, ok := m.AppKeys[name]; ok {
		return k, nil
	}
	if k, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(k), nil
	}
	return 0, fmt.Errorf("unknown app key %q", name)
}

// Name is the inverse of Key; unmapped keys render as decimal.
func (m Manifest) Name(key uint32) string {
	for name, k := range m.AppKeys {
		if k == key {
			return name
		}
	}
	return strconv.FormatUint(uint64(key), 10)
}
