// Package openaicompat implements embedprovider.Provider for the OpenAI
// embeddings API and anything wire-compatible with it.
package openaicompat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the OpenAI API host. A compatible endpoint
	// (e.g. Azure OpenAI, a local vLLM server) overrides it via Config.
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultMaxBatchInputs = 2048
	defaultMaxInputTokens = 8191
)

// staticDimensions holds the known output widths for OpenAI's published
// embedding models, so Dimension avoids an extra round trip for them.
var staticDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config configures the provider.
type Config struct {
	APIKey  string
	BaseURL string // defaults to DefaultBaseURL
}

// Provider calls an OpenAI-compatible /embeddings endpoint.
type Provider struct {
	client *resty.Client
}

// New creates a Provider. cfg.APIKey may be empty for local
// OpenAI-compatible servers that don't require auth.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Provider{client: client}
}

func (p *Provider) Name() string { return "openaicompat" }

// Client exposes the underlying resty client so wire-compatible
// gateways (e.g. pkg/embedprovider/portkey) can layer extra routing
// headers on top without reimplementing the request/response shapes.
func (p *Provider) Client() *resty.Client { return p.client }

func (p *Provider) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": model, "input": inputs}).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("calling openai-compatible embeddings endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, &httpError{status: resp.StatusCode(), body: resp.String()}
	}

	data := gjson.GetBytes(resp.Body(), "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("openai-compatible response missing data array: %s", resp.String())
	}

	results := data.Array()
	out := make([][]float32, len(results))
	for i, item := range results {
		vec := item.Get("embedding").Array()
		v := make([]float32, len(vec))
		for j, f := range vec {
			v[j] = float32(f.Float())
		}
		out[i] = v
	}
	return out, nil
}

func (p *Provider) Dimension(ctx context.Context, model string) (int, error) {
	if d, ok := staticDimensions[model]; ok {
		return d, nil
	}
	vecs, err := p.Embed(ctx, model, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probing dimension for model %q: %w", model, err)
	}
	if len(vecs) == 0 {
		return 0, fmt.Errorf("probing dimension for model %q: no embedding returned", model)
	}
	return len(vecs[0]), nil
}

func (p *Provider) MaxBatchInputs() int { return defaultMaxBatchInputs }
func (p *Provider) MaxInputTokens() int { return defaultMaxInputTokens }

func (p *Provider) Retryable(err error) bool {
	var he *httpError
	if e, ok := err.(*httpError); ok {
		he = e
	}
	if he == nil {
		return true // network-level error (timeout, connection reset): retry
	}
	return he.status == http.StatusTooManyRequests || he.status >= 500
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai-compatible endpoint returned status %d: %s", e.status, e.body)
}
