package config

import (
	"fmt"
	"net/url"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Source.URL != "" {
		u, err := url.Parse(cfg.Source.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source.url must be an http(s) URL")
		}
	}
	if cfg.Source.TimeoutMS < 0 {
		return fmt.Errorf("source.timeout must not be negative")
	}
	if cfg.Source.Retries < 0 {
		return fmt.Errorf("source.retries must not be negative")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.maxentries must not be negative")
	}
	if cfg.Cache.FlushIntervalS < 0 {
		return fmt.Errorf("cache.flushinterval must not be negative")
	}
	if cfg.Validation.MaxDepth < 0 {
		return fmt.Errorf("validation.maxdepth must not be negative")
	}
	return nil
}
