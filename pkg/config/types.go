package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent vectorize configuration stored as
// config.toml in the .vectorize/ directory. The TOML layout uses
// sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Database  DatabaseConfig  `toml:"database"`
	API       APIConfig       `toml:"api"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Worker    WorkerConfig    `toml:"worker"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
	Events    EventsConfig    `toml:"events"`
}

// DatabaseConfig holds the Postgres connection settings shared by every
// component (API, proxy, worker).
type DatabaseConfig struct {
	URL string `toml:"url,omitempty"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ProxyConfig holds the wire-protocol proxy's settings.
type ProxyConfig struct {
	Enabled  bool   `toml:"enabled,omitempty"`
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`
}

// WorkerConfig holds embedding worker pool tuning.
type WorkerConfig struct {
	NumWorkers          uint `toml:"num_workers,omitempty"`
	PollIntervalSeconds uint `toml:"poll_interval_seconds,omitempty"`
}

// EmbeddingConfig holds the default embedding provider settings, used
// when a job's transformer string doesn't carry its own credentials.
type EmbeddingConfig struct {
	Provider string `toml:"provider,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// SearchConfig holds hybrid search fusion defaults.
type SearchConfig struct {
	SemanticWeight float64 `toml:"semantic_weight,omitempty"`
	FTSWeight      float64 `toml:"fts_weight,omitempty"`
	RRFK           float64 `toml:"rrf_k,omitempty"`
}

// EventsConfig holds lifecycle event publishing settings. KafkaBrokers
// is a comma-separated list of broker addresses; an empty value
// disables publishing and falls back to a no-op publisher.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"database.url": {
		get: func(c *Config) string { return c.Database.URL },
		set: func(c *Config, v string) error { c.Database.URL = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"proxy.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Proxy.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for proxy.enabled: %w", err)
			}
			c.Proxy.Enabled = b
			return nil
		},
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"worker.num_workers": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Worker.NumWorkers), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for worker.num_workers: %w", err)
			}
			c.Worker.NumWorkers = uint(n)
			return nil
		},
	},
	"worker.poll_interval_seconds": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Worker.PollIntervalSeconds), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for worker.poll_interval_seconds: %w", err)
			}
			c.Worker.PollIntervalSeconds = uint(n)
			return nil
		},
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.base_url": {
		get: func(c *Config) string { return c.Embedding.BaseURL },
		set: func(c *Config, v string) error { c.Embedding.BaseURL = v; return nil },
	},
	"embedding.api_key": {
		get: func(c *Config) string { return c.Embedding.APIKey },
		set: func(c *Config, v string) error { c.Embedding.APIKey = v; return nil },
	},
	"search.semantic_weight": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Search.SemanticWeight, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.semantic_weight: %w", err)
			}
			c.Search.SemanticWeight = f
			return nil
		},
	},
	"search.fts_weight": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Search.FTSWeight, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.fts_weight: %w", err)
			}
			c.Search.FTSWeight = f
			return nil
		},
	},
	"search.rrf_k": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Search.RRFK, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.rrf_k: %w", err)
			}
			c.Search.RRFK = f
			return nil
		},
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}
