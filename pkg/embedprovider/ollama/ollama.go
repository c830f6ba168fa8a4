// Package ollama implements embedprovider.Provider for a local Ollama
// server's embedding API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is Ollama's default local API address.
	DefaultBaseURL = "http://localhost:11434"

	defaultMaxBatchInputs = 64
	defaultMaxInputTokens = 2048
)

// Config configures the provider.
type Config struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL if empty.
	BaseURL string
}

// Provider calls Ollama's /api/embed endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// embedRequest is the request body for Ollama's embedding API.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the response from Ollama's embedding API.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// New creates a Provider.
func New(cfg Config) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Provider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(embedRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("marshaling ollama embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating ollama embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama embed endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &httpError{status: resp.StatusCode, body: string(body)}
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding ollama embed response: %w", err)
	}
	if len(embedResp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(embedResp.Embeddings), len(inputs))
	}

	return embedResp.Embeddings, nil
}

// Dimension probes dimension by embedding a throwaway string and
// measuring the result, the same approach ollama_rs-based callers use
// since Ollama does not advertise model dimensions statically.
func (p *Provider) Dimension(ctx context.Context, model string) (int, error) {
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
	return fmt.Sprintf("ollama returned status %d: %s", e.status, e.body)
}
