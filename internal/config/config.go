// Package config loads and validates cividex configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config ($XDG_CONFIG_HOME/cividex/config.yaml)
//  3. Corpus config (.cividex.yaml at the corpus root)
//  4. Environment variables (CIVIDEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete cividex configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// CorpusConfig locates the record corpus on disk.
type CorpusConfig struct {
	// Dir is the corpus root. Empty means the directory Load was
	// called with.
	Dir string `yaml:"dir" json:"dir"`

	// Include globs select corpus files relative to Dir.
	// Empty means every .md and .txt file.
	Include []string `yaml:"include" json:"include"`

	// Exclude globs remove files from the selection.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures the full-text engine.
type IndexConfig struct {
	// Backend selects the engine: "sqlite" (default) or "bleve".
	Backend string `yaml:"backend" json:"backend"`

	// DataDir holds the index and metadata files.
	// Empty means <corpus>/.cividex.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Workers is the parallel parse worker count for ingest.
	Workers int `yaml:"workers" json:"workers"`

	// WatchDebounce is the quiet window before re-ingesting changed
	// files in watch mode, e.g. "500ms".
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// SearchConfig configures query handling and result shaping.
type SearchConfig struct {
	// DefaultLimit is the result count when a request asks for none.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit caps the per-request result count.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// TitleWeight multiplies title matches relative to body matches.
	TitleWeight float64 `yaml:"title_weight" json:"title_weight"`

	// SnippetTokens is the approximate snippet length in tokens.
	SnippetTokens int `yaml:"snippet_tokens" json:"snippet_tokens"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" json:"addr"`

	// AdminToken gates the admin endpoints. Empty disables them.
	AdminToken string `yaml:"admin_token" json:"admin_token"`

	// CacheSize is the response cache capacity in entries.
	// Zero disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// CacheTTL is the response cache entry lifetime, e.g. "30s".
	CacheTTL string `yaml:"cache_ttl" json:"cache_ttl"`
}

// TelemetryConfig configures query telemetry collection.
// All telemetry stays local; nothing is ever reported externally.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	FlushInterval string `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// File overrides the default log path under ~/.cividex/logs.
	File string `yaml:"file" json:"file"`
}

// defaultExcludePatterns are always excluded from the corpus walk.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/.cividex/**",
	"**/node_modules/**",
	"**/*.tmp",
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Index: IndexConfig{
			Backend:       "sqlite",
			Workers:       runtime.NumCPU(),
			WatchDebounce: "500ms",
		},
		Search: SearchConfig{
			DefaultLimit:  10,
			MaxLimit:      100,
			TitleWeight:   2.0,
			SnippetTokens: 12,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8930",
			CacheSize: 512,
			CacheTTL:  "30s",
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/cividex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/cividex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cividex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "cividex", "config.yaml")
	}
	return filepath.Join(home, ".config", "cividex", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load loads configuration for the corpus rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	// Resolve paths relative to the corpus root
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = dir
	}
	if cfg.Index.DataDir == "" {
		cfg.Index.DataDir = filepath.Join(cfg.Corpus.Dir, ".cividex")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .cividex.yaml or
// .cividex.yml in dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".cividex.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".cividex.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Corpus
	if other.Corpus.Dir != "" {
		c.Corpus.Dir = other.Corpus.Dir
	}
	if len(other.Corpus.Include) > 0 {
		c.Corpus.Include = other.Corpus.Include
	}
	if len(other.Corpus.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Corpus.Exclude = append(c.Corpus.Exclude, other.Corpus.Exclude...)
	}

	// Index
	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.DataDir != "" {
		c.Index.DataDir = other.Index.DataDir
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.WatchDebounce != "" {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}

	// Search
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.TitleWeight != 0 {
		c.Search.TitleWeight = other.Search.TitleWeight
	}
	if other.Search.SnippetTokens != 0 {
		c.Search.SnippetTokens = other.Search.SnippetTokens
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.AdminToken != "" {
		c.Server.AdminToken = other.Server.AdminToken
	}
	if other.Server.CacheSize != 0 {
		c.Server.CacheSize = other.Server.CacheSize
	}
	if other.Server.CacheTTL != "" {
		c.Server.CacheTTL = other.Server.CacheTTL
	}

	// Telemetry
	// Enabled is boolean - need to check if any telemetry config was set
	if other.Telemetry.FlushInterval != "" {
		c.Telemetry.Enabled = other.Telemetry.Enabled
		c.Telemetry.FlushInterval = other.Telemetry.FlushInterval
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies CIVIDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CIVIDEX_CORPUS_DIR"); v != "" {
		c.Corpus.Dir = v
	}
	if v := os.Getenv("CIVIDEX_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("CIVIDEX_DATA_DIR"); v != "" {
		c.Index.DataDir = v
	}
	if v := os.Getenv("CIVIDEX_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Workers = n
		}
	}
	if v := os.Getenv("CIVIDEX_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.DefaultLimit = n
		}
	}
	if v := os.Getenv("CIVIDEX_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxLimit = n
		}
	}
	if v := os.Getenv("CIVIDEX_TITLE_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w > 0 {
			c.Search.TitleWeight = w
		}
	}
	if v := os.Getenv("CIVIDEX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CIVIDEX_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("CIVIDEX_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CIVIDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validBackends := map[string]bool{"": true, "sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Index.Backend)] {
		return fmt.Errorf("index.backend must be 'sqlite' or 'bleve', got %s", c.Index.Backend)
	}

	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search.max_limit must be positive, got %d", c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.TitleWeight <= 0 {
		return fmt.Errorf("search.title_weight must be positive, got %f", c.Search.TitleWeight)
	}
	if c.Search.SnippetTokens < 1 || c.Search.SnippetTokens > 64 {
		return fmt.Errorf("search.snippet_tokens must be between 1 and 64, got %d", c.Search.SnippetTokens)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.CacheTTL != "" {
		if _, err := time.ParseDuration(c.Server.CacheTTL); err != nil {
			return fmt.Errorf("server.cache_ttl is not a duration: %w", err)
		}
	}

	if c.Index.WatchDebounce != "" {
		if _, err := time.ParseDuration(c.Index.WatchDebounce); err != nil {
			return fmt.Errorf("index.watch_debounce is not a duration: %w", err)
		}
	}
	if c.Telemetry.FlushInterval != "" {
		if _, err := time.ParseDuration(c.Telemetry.FlushInterval); err != nil {
			return fmt.Errorf("telemetry.flush_interval is not a duration: %w", err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// CacheTTLDuration returns the parsed response cache TTL.
func (c *ServerConfig) CacheTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// WatchDebounceDuration returns the parsed watch debounce window.
func (c *IndexConfig) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// FlushIntervalDuration returns the parsed telemetry flush interval.
func (c *TelemetryConfig) FlushIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.FlushInterval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindCorpusRoot finds the corpus root directory by walking up from
// startDir looking for a .cividex.yaml/.yml file or a .git directory.
// Falls back to startDir when nothing is found.
func FindCorpusRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ".cividex.yaml")) ||
			fileExists(filepath.Join(currentDir, ".cividex.yml")) {
			return currentDir, nil
		}
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
