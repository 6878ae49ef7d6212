package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("TW_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("TW_HOME", "/custom/threadwatch")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["home"] != "/custom/threadwatch" {
			t.Errorf("home = %q, want %q", defaults["home"], "/custom/threadwatch")
		}
	})

	t.Run("respects XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("TW_CONFIG_PATH", "")
		t.Setenv("TW_HOME", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		want := filepath.Join("/xdg/config", "threadwatch", "config.toml")
		if defaults["config_path"] != want {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("TW_CONFIG_PATH", "")
		t.Setenv("TW_HOME", "")
		t.Setenv("XDG_CONFIG_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "threadwatch", "config.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantHome := filepath.Join(homeDir, "threadwatch")
		if defaults["home"] != wantHome {
			t.Errorf("home = %q, want %q", defaults["home"], wantHome)
		}
	})
}
