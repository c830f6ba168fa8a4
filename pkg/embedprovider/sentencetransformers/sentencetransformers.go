// Package sentencetransformers implements embedprovider.Provider for a
// self-hosted sentence-transformers HTTP embedding service (e.g. Hugging
// Face's text-embeddings-inference), which exposes a single /embed
// endpoint and has no notion of "model" beyond whatever was loaded at
// startup.
package sentencetransformers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the conventional local port for a
	// text-embeddings-inference container.
	DefaultBaseURL = "http://localhost:8080"

	defaultMaxBatchInputs = 32
	defaultMaxInputTokens = 512
)

// Config configures the provider.
type Config struct {
	BaseURL string // defaults to DefaultBaseURL
}

// Provider calls a self-hosted sentence-transformers HTTP service.
type Provider struct {
	client *resty.Client
}

// New creates a Provider.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Provider{client: client}
}

func (p *Provider) Name() string { return "sentencetransformers" }

// Embed ignores model: the service embeds with whatever model it loaded
// at startup, so model is accepted only to satisfy the shared interface.
func (p *Provider) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"inputs": inputs}).
		Post("/embed")
	if err != nil {
		return nil, fmt.Errorf("calling sentence-transformers embed endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, &httpError{status: resp.StatusCode(), body: resp.String()}
	}

	rows := gjson.ParseBytes(resp.Body())
	if !rows.IsArray() {
		return nil, fmt.Errorf("sentence-transformers response is not an array: %s", resp.String())
	}

	results := rows.Array()
	out := make([][]float32, len(results))
	for i, item := range results {
		vec := item.Array()
		v := make([]float32, len(vec))
		for j, f := range vec {
			v[j] = float32(f.Float())
		}
		out[i] = v
	}
	return out, nil
}

func (p *Provider) Dimension(ctx context.Context, model string) (int, error) {
	vecs, err := p.Embed(ctx, model, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probing dimension: %w", err)
	}
	if len(vecs) == 0 {
		return 0, fmt.Errorf("probing dimension: no embedding returned")
	}
	return len(vecs[0]), nil
}

func (p *Provider) MaxBatchInputs() int { return defaultMaxBatchInputs }
func (p *Provider) MaxInputTokens() int { return defaultMaxInputTokens }

func (p *Provider) Retryable(err error) bool {
	he, ok := err.(*httpError)
	if !ok {
		return true
	}
	return he.status == http.StatusTooManyRequests || he.status >= 500
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("sentence-transformers endpoint returned status %d: %s", e.status, e.body)
}
