// Package vconn builds the shared database-backed components
// (metastore, queue, registry, search engine) CLI commands that talk to
// Postgres directly need, from the same persistent configuration
// vectorize serve uses.
package vconn

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/config"
	"github.com/paperlane/vectorize/pkg/embedprovider"
	"github.com/paperlane/vectorize/pkg/eventstream"
	"github.com/paperlane/vectorize/pkg/eventstream/kafka"
	"github.com/paperlane/vectorize/pkg/eventstream/nop"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/queue"
	"github.com/paperlane/vectorize/pkg/registry"
	"github.com/paperlane/vectorize/pkg/search"
)

// Conn bundles the components built from persistent configuration that
// every database-backed CLI command needs.
type Conn struct {
	Store     *metastore.Store
	Queue     *queue.Client
	Registry  *registry.Registry
	Engine    *search.Engine
	Providers embedprovider.Config
	Events    eventstream.Publisher
}

// Open loads persistent configuration from configDir and connects to
// the configured Postgres database, building the registry and search
// engine the same way vectorize serve api does.
func Open(ctx context.Context, configDir string, logger *zap.Logger) (*Conn, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := metastore.New(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Database.URL, err)
	}

	providers := embedprovider.Config{
		OllamaBaseURL: cfg.Embedding.BaseURL,
	}
	switch cfg.Embedding.Provider {
	case "cohere":
		providers.CohereAPIKey = cfg.Embedding.APIKey
	case "voyage":
		providers.VoyageAPIKey = cfg.Embedding.APIKey
	case "openai", "openaicompat":
		providers.OpenAIAPIKey = cfg.Embedding.APIKey
	case "portkey":
		providers.PortkeyAPIKey = cfg.Embedding.APIKey
		providers.PortkeyBaseURL = cfg.Embedding.BaseURL
	case "sentencetransformers":
		providers.STBaseURL = cfg.Embedding.BaseURL
	}

	var events eventstream.Publisher
	if cfg.Events.KafkaBrokers != "" {
		brokers := strings.Split(cfg.Events.KafkaBrokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		events = kafka.New(kafka.Config{Brokers: brokers, Topic: cfg.Events.KafkaTopic}, logger)
	} else {
		events = nop.NewPublisher()
	}

	q := queue.New(store.Pool())
	reg := registry.New(store, q, providers, logger, events)
	engine := search.New(store, providers, logger)

	return &Conn{Store: store, Queue: q, Registry: reg, Engine: engine, Providers: providers, Events: events}, nil
}

// Close releases the underlying connection pool and event publisher.
func (c *Conn) Close() {
	_ = c.Events.Close()
	c.Store.Close()
}
