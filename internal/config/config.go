// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Storage StorageConfig
	Server  ServerConfig
	Suggest SuggestConfig
	Session SessionConfig
	Import  ImportConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig selects the key-value backend behind the suggestion store.
type StorageConfig struct {
	Backend  string // badger, sqlite or memory (default: badger)
	DataPath string // Directory for on-disk backends (default: ~/OCRMapper/data)
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	AllowedOrigins     []string
	RateLimitPerMinute int
	RateLimitBurst     int
}

// SuggestConfig tunes the suggestion engine's learning windows.
type SuggestConfig struct {
	HistoryCap       int // Most recent history entries kept after pruning (default: 1000)
	PruneEvery       int // Prune after every Nth recorded mapping (default: 50)
	SimilarityWindow int // Recent entries scanned for similarity (default: 50)
	MaxSuggestions   int // Suggestions returned per query (default: 3)
}

// SessionConfig holds correction-session limits.
type SessionConfig struct {
	UndoDepth int
	TTL       time.Duration
}

// ImportConfig configures the history-import drop directory.
type ImportConfig struct {
	WatchDir    string        // Optional; empty disables the watcher
	SettleDelay time.Duration // How long a file must be quiet before import
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	backend := fs.String("storage", "", "Storage backend (badger, sqlite, memory)")
	dataPath := fs.String("data-path", "", "Directory for persisted suggestion data")
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	origins := fs.String("allowed-origins", "", "Comma-separated CORS origins (default: *)")
	sessionTTL := fs.String("session-ttl", "", "Idle lifetime of a correction session (default: 24h)")
	watchDir := fs.String("import-dir", "", "Directory watched for mapping-history exports")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Backend:  strings.ToLower(getConfigValue(*backend, "STORAGE_BACKEND", BackendBadger)),
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:               getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AllowedOrigins:     splitList(getConfigValue(*origins, "ALLOWED_ORIGINS", "*")),
			RateLimitPerMinute: getIntConfigValue("", "RATE_LIMIT_PER_MINUTE", 600),
			RateLimitBurst:     getIntConfigValue("", "RATE_LIMIT_BURST", 100),
		},
		Suggest: SuggestConfig{
			HistoryCap:       getIntConfigValue("", "SUGGEST_HISTORY_CAP", 1000),
			PruneEvery:       getIntConfigValue("", "SUGGEST_PRUNE_EVERY", 50),
			SimilarityWindow: getIntConfigValue("", "SUGGEST_SIMILARITY_WINDOW", 50),
			MaxSuggestions:   getIntConfigValue("", "SUGGEST_MAX_RESULTS", 3),
		},
		Session: SessionConfig{
			UndoDepth: getIntConfigValue("", "SESSION_UNDO_DEPTH", 50),
		},
		Import: ImportConfig{
			WatchDir: getConfigValue(*watchDir, "IMPORT_WATCH_DIR", ""),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dest      *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*sessionTTL, "SESSION_TTL", "24h", &cfg.Session.TTL},
		{"", "IMPORT_SETTLE_DELAY", "2s", &cfg.Import.SettleDelay},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dest = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if cfg.Import.WatchDir != "" {
		expanded, err := expandPath(cfg.Import.WatchDir, "")
		if err != nil {
			return nil, fmt.Errorf("invalid import dir: %w", err)
		}
		cfg.Import.WatchDir = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Storage.Backend {
	case BackendBadger, BackendSQLite:
		if c.Storage.DataPath == "" {
			return errors.New("data path cannot be empty for on-disk storage")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be badger, sqlite, or memory)", c.Storage.Backend)
	}

	if c.Suggest.HistoryCap <= 0 || c.Suggest.PruneEvery <= 0 || c.Suggest.SimilarityWindow <= 0 || c.Suggest.MaxSuggestions <= 0 {
		return errors.New("suggest limits must be positive")
	}

	if c.Session.UndoDepth < 0 {
		return errors.New("session undo depth cannot be negative")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults the data directory to ~/OCRMapper/data.
func (c *Config) expandDataPath() error {
	if c.Storage.Backend == BackendMemory && c.Storage.DataPath == "" {
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "OCRMapper", "data")

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
