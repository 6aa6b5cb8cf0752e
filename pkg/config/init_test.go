package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, section := range []string{"logging:", "api:", "webdav:", "mount:", "settings:", "metrics:", "telemetry:"} {
		if !strings.Contains(string(content), section) {
			t.Errorf("sample config missing section %s", section)
		}
	}

	// The sample must load and validate as-is
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if cfg.API.Port != DefaultAPIPort {
		t.Fatalf("api port = %d, want %d", cfg.API.Port, DefaultAPIPort)
	}

	// Existing file is protected unless forced
	if err := InitConfigToPath(path, false); err == nil {
		t.Fatal("expected error for existing file")
	}
	if err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("force overwrite: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("config file mode = %o, want 600", info.Mode().Perm())
	}
}
