// Package config handles daemon configuration.
//
// Everything here is operational: which node to fetch transactions from,
// where to keep the verdict database, how the RPC listener behaves. The
// validation rules themselves are fixed by the protocol and take no
// configuration.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds daemon runtime configuration.
type Config struct {
	// Core
	DataDir string `conf:"datadir"`

	// Transaction source (upstream bitcoind-compatible node)
	Source SourceConfig

	// RPC server
	RPC RPCConfig

	// Verdict cache
	Cache CacheConfig

	// Validation
	Validation ValidationConfig

	// Logging
	Log LogConfig
}

// SourceConfig holds upstream node settings.
type SourceConfig struct {
	URL       string `conf:"source.url"`
	Username  string `conf:"source.user"`
	Password  string `conf:"source.pass"`
	TimeoutMS int    `conf:"source.timeout"`   // Per-request timeout in milliseconds.
	Retries   int    `conf:"source.retries"`   // Fetch attempts per transaction.
	CacheSize int    `conf:"source.cachesize"` // Raw transaction LRU entries.
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// CacheConfig holds verdict cache settings.
type CacheConfig struct {
	MaxEntries     int `conf:"cache.maxentries"`
	FlushIntervalS int `conf:"cache.flushinterval"` // Seconds between flushes; 0 disables.
}

// ValidationConfig holds validation settings.
type ValidationConfig struct {
	MaxDepth int `conf:"validation.maxdepth"` // Ancestry depth for depth-limited queries.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.slpd
//	macOS:   ~/Library/Application Support/Slpd
//	Windows: %APPDATA%\Slpd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".slpd"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Slpd")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Slpd")
		}
		return filepath.Join(home, "AppData", "Roaming", "Slpd")
	default:
		return filepath.Join(home, ".slpd")
	}
}

// DBDir returns the verdict database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "slpd.conf")
}
