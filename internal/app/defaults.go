package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment
// variables first. Environment variables:
//   - TW_CONFIG_PATH: config file location
//     (default: $XDG_CONFIG_HOME/threadwatch/config.toml, falling back
//     to ~/.config/threadwatch/config.toml)
//   - TW_HOME: base directory for threadwatch data (default: ~/threadwatch)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	home, err := getHomeDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"home":        home,
	}, nil
}

// getConfigPath returns the config file path, checking TW_CONFIG_PATH
// first, then XDG_CONFIG_HOME, then ~/.config.
func getConfigPath() (string, error) {
	if path := os.Getenv("TW_CONFIG_PATH"); path != "" {
		return path, nil
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "threadwatch", "config.toml"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "threadwatch", "config.toml"), nil
}

// getHomeDir returns the base directory for threadwatch data, checking
// the TW_HOME env var first.
func getHomeDir() (string, error) {
	if path := os.Getenv("TW_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, "threadwatch"), nil
}
