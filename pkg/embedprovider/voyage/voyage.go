// Package voyage implements embedprovider.Provider for Voyage AI's
// embeddings API.
package voyage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is Voyage AI's API host.
	DefaultBaseURL = "https://api.voyageai.com/v1"

	defaultMaxBatchInputs = 128
	defaultMaxInputTokens = 320
)

var staticDimensions = map[string]int{
	"voyage-3":       1024,
	"voyage-3-lite":  512,
	"voyage-large-2": 1536,
}

// Config configures the provider.
type Config struct {
	APIKey  string
	BaseURL string // defaults to DefaultBaseURL
}

// Provider calls Voyage's /embeddings endpoint.
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
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)
	return &Provider{client: client}
}

func (p *Provider) Name() string { return "voyage" }

func (p *Provider) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": model, "input": inputs, "input_type": "document"}).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("calling voyage embeddings endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, &httpError{status: resp.StatusCode(), body: resp.String()}
	}

	data := gjson.GetBytes(resp.Body(), "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("voyage response missing data array: %s", resp.String())
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
	return fmt.Sprintf("voyage endpoint returned status %d: %s", e.status, e.body)
}
