// Package portkey implements embedprovider.Provider for Portkey's AI
// gateway, which proxies to an upstream embedding provider selected by a
// virtual key and speaks the OpenAI embeddings wire format itself.
package portkey

import (
	"github.com/paperlane/vectorize/pkg/embedprovider/openaicompat"
)

const defaultBaseURL = "https://api.portkey.ai/v1"

// Config configures the provider.
type Config struct {
	APIKey     string
	VirtualKey string
	BaseURL    string // defaults to defaultBaseURL
}

// Provider calls Portkey's gateway, reusing openaicompat's request and
// response handling since Portkey speaks the OpenAI wire format and
// only adds a routing header on top.
type Provider struct {
	*openaicompat.Provider
}

// New creates a Provider.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	inner := openaicompat.New(openaicompat.Config{APIKey: cfg.APIKey, BaseURL: baseURL})
	inner.Client().SetHeader("x-portkey-virtual-key", cfg.VirtualKey)

	return &Provider{Provider: inner}
}

func (p *Provider) Name() string { return "portkey" }
