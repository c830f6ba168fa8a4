package config

const (
	defaultDatabaseURL = "postgres://localhost:5432/vectorize"

	defaultAPIListen = ":8081"

	defaultProxyListen   = ":6543"
	defaultProxyUpstream = "localhost:5432"

	defaultNumWorkers          = 3
	defaultPollIntervalSeconds = 2

	defaultEmbeddingProvider = "ollama"
	defaultEmbeddingBaseURL  = "http://localhost:11434"

	defaultSemanticWeight = 1.0
	defaultFTSWeight      = 1.0
	defaultRRFK           = 60.0

	defaultKafkaTopic = "vectorize.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Database: DatabaseConfig{
			URL: defaultDatabaseURL,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Listen:   defaultProxyListen,
			Upstream: defaultProxyUpstream,
		},
		Worker: WorkerConfig{
			NumWorkers:          defaultNumWorkers,
			PollIntervalSeconds: defaultPollIntervalSeconds,
		},
		Embedding: EmbeddingConfig{
			Provider: defaultEmbeddingProvider,
			BaseURL:  defaultEmbeddingBaseURL,
		},
		Search: SearchConfig{
			SemanticWeight: defaultSemanticWeight,
			FTSWeight:      defaultFTSWeight,
			RRFK:           defaultRRFK,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
