package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for threadwatch.
type Config struct {
	Watch   WatchConfig   `toml:"watch"`
	HTTP    HTTPConfig    `toml:"http"`
	Index   IndexConfig   `toml:"index"`
	Markup  MarkupConfig  `toml:"markup"`
	Mirror  MirrorConfig  `toml:"mirror"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`
}

// WatchConfig holds the watcher behavior settings. Values here become
// the immutable options handed to every watcher at startup.
type WatchConfig struct {
	DownloadRoot    string  `toml:"download_root"`
	RefreshSeconds  float64 `toml:"refresh_seconds"`
	ThrottleSeconds float64 `toml:"throttle_seconds"`
	BackoffSeconds  float64 `toml:"backoff_seconds"`
	ReloadMinutes   int     `toml:"reload_minutes"`
	Counter         bool    `toml:"counter"`
	Verbose         bool    `toml:"verbose"`
	PreferNames     bool    `toml:"prefer_names"`
	Titles          bool    `toml:"titles"`
	OriginNames     bool    `toml:"origin_names"`
	SubjectNames    bool    `toml:"subject_names"`
	DateInLog       bool    `toml:"date_in_log"`
}

// HTTPConfig holds the hosts and pacing for outbound requests.
type HTTPConfig struct {
	APIHost           string  `toml:"api_host"`
	FileHost          string  `toml:"file_host"`
	UserAgent         string  `toml:"user_agent,omitempty"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// IndexConfig represents configuration for the content-hash index.
// This uses a tagged union pattern - the Type field determines which
// other fields are relevant.
type IndexConfig struct {
	Type            string `toml:"type"` // "sqlite" or "memory"
	Path            string `toml:"path,omitempty"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// MarkupConfig selects the page parser.
type MarkupConfig struct {
	Parser string `toml:"parser"` // "rich" or "basic"
}

// MirrorConfig represents configuration for the mirror sink.
// This uses a tagged union pattern - the Type field determines which
// other fields are relevant.
type MirrorConfig struct {
	Type string `toml:"type"` // "none", "filesystem", "s3", or "memory"

	// Filesystem-specific fields (only used when Type == "filesystem")
	Path string `toml:"path,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	Bucket         string `toml:"bucket,omitempty"`
	Prefix         string `toml:"prefix,omitempty"`
	Region         string `toml:"region,omitempty"`
	Endpoint       string `toml:"endpoint,omitempty"`
	AccessKey      string `toml:"access_key,omitempty"`
	SecretKey      string `toml:"secret_key,omitempty"`
	ForcePathStyle bool   `toml:"force_path_style,omitempty"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr,omitempty"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	Path       string `toml:"path,omitempty"`
	Level      string `toml:"level"` // "debug", "info", "warn", "error"
	TimeFormat string `toml:"time_format,omitempty"`
}

// NewConfig creates a Config with defaults rooted at the given home
// directory.
func NewConfig(home string) *Config {
	return &Config{
		Watch: WatchConfig{
			DownloadRoot:    filepath.Join(home, "downloads"),
			RefreshSeconds:  20,
			ThrottleSeconds: 0.5,
			BackoffSeconds:  0.5,
		},
		HTTP: HTTPConfig{
			APIHost:  "a.4cdn.org",
			FileHost: "i.4cdn.org",
		},
		Index: IndexConfig{
			Type:            "sqlite",
			Path:            filepath.Join(home, "hashes.db"),
			CacheTTLSeconds: 60,
		},
		Markup: MarkupConfig{
			Parser: "rich",
		},
		Mirror: MirrorConfig{
			Type: "none",
		},
		Log: LogConfig{
			Path:  filepath.Join(home, "log", "threadwatch.log"),
			Level: "info",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Load returns the config at path layered over the defaults for home:
// keys absent from the file keep their default values. A missing file
// yields pure defaults.
func Load(path, home string) (*Config, error) {
	cfg := NewConfig(home)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
