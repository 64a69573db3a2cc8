//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestYAMLBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gravity", "config.yaml")

	b := openYAMLBackend(path)
	if err := b.SetInt("server.port", 4100); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := b.SetString("host.launcher", "browser"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	reopened := openYAMLBackend(path)
	port, ok, err := reopened.GetInt("server.port")
	if err != nil || !ok || port != 4100 {
		t.Errorf("GetInt = %d, %v, %v", port, ok, err)
	}
	launcher, ok, err := reopened.GetString("host.launcher")
	if err != nil || !ok || launcher != "browser" {
		t.Errorf("GetString = %q, %v, %v", launcher, ok, err)
	}

	if err := reopened.Delete("host.launcher"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := openYAMLBackend(path).GetString("host.launcher"); ok {
		t.Error("deleted key still present")
	}
	if err := reopened.Delete("host.launcher"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestYAMLBackend_NestsKeysBySection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := openYAMLBackend(path).SetInt("server.port", 4100); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "server:\n    port: 4100") {
		t.Errorf("config.yaml =\n%s", raw)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestYAMLBackend_HandWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "server:\n  port: 4200\nhost:\n  launcher: browser\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(openYAMLBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4200 || cfg.Host.Launcher != "browser" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestYAMLBackend_CorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(openYAMLBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
}

func TestYAMLBackend_FractionalPortRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 40.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadWith(openYAMLBackend(path)); err == nil {
		t.Error("expected error for fractional port")
	}
}

func TestConfigFilePathHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := configFilePath(); got != filepath.Join("/tmp/xdg", "gravity", "config.yaml") {
		t.Errorf("configFilePath = %q", got)
	}
}

func TestNewKeychain_SecretsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("GRAVITY_API_TOKEN", "")

	kc := NewKeychain()
	if _, err := kc.Get("gravity", "api_token"); err == nil {
		t.Fatal("expected error before any secret is stored")
	}

	token, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	again, err := GetAPIToken(NewKeychain())
	if err != nil || again != token {
		t.Errorf("second GetAPIToken = %q, %v, want %q", again, err, token)
	}

	info, err := os.Stat(filepath.Join(dir, "gravity", "secrets.yaml"))
	if err != nil {
		t.Fatalf("secrets file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}
