package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "datadir":
		cfg.DataDir = value

	// Source
	case "source.url":
		cfg.Source.URL = value
	case "source.user":
		cfg.Source.Username = value
	case "source.pass":
		cfg.Source.Password = value
	case "source.timeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Source.TimeoutMS = n
	case "source.retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Source.Retries = n
	case "source.cachesize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Source.CacheSize = n

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Cache
	case "cache.maxentries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Cache.MaxEntries = n
	case "cache.flushinterval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Cache.FlushIntervalS = n

	// Validation
	case "validation.maxdepth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Validation.MaxDepth = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string) error {
	content := `# SLP Validation Daemon Configuration

# Data directory (default: ~/.slpd)
# datadir = ~/.slpd

# ============================================================================
# Transaction Source
# ============================================================================

# JSON-RPC endpoint of a bitcoind-compatible node
source.url = http://127.0.0.1:8332
# source.user =
# source.pass =

# Per-request timeout in milliseconds
source.timeout = 10000

# Fetch attempts per transaction before giving up
source.retries = 3

# Raw transaction LRU cache entries
source.cachesize = 10000

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = 8545
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Verdict Cache
# ============================================================================

# Maximum verdicts held in memory
cache.maxentries = 100000

# Seconds between durable flushes (0 disables periodic flushing;
# a final flush still happens on shutdown)
cache.flushinterval = 60

# ============================================================================
# Validation
# ============================================================================

# Ancestry depth for depth-limited queries
validation.maxdepth = 1000

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
