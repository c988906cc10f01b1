package config

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Source: SourceConfig{
			URL:       "http://127.0.0.1:8332",
			TimeoutMS: 10_000,
			Retries:   3,
			CacheSize: 10_000,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8545,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Cache: CacheConfig{
			MaxEntries:     100_000,
			FlushIntervalS: 60,
		},
		Validation: ValidationConfig{
			MaxDepth: 1000,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
