// Package embedprovider resolves a transformer string to a concrete
// embedding provider variant and exposes a uniform capability interface
// over all of them, the same enum-of-variants shape the teacher uses for
// chat providers in pkg/llm/provider.
package embedprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/paperlane/vectorize/pkg/embedprovider/cohere"
	"github.com/paperlane/vectorize/pkg/embedprovider/ollama"
	"github.com/paperlane/vectorize/pkg/embedprovider/openaicompat"
	"github.com/paperlane/vectorize/pkg/embedprovider/portkey"
	"github.com/paperlane/vectorize/pkg/embedprovider/sentencetransformers"
	"github.com/paperlane/vectorize/pkg/embedprovider/voyage"
)

// Provider is the capability every embedding backend implements.
type Provider interface {
	// Name returns the canonical variant name.
	Name() string

	// Embed embeds inputs in order, returning one vector per input.
	// model is the model name resolved from the job's transformer string
	// (the part after the variant prefix, e.g. "text-embedding-3-small"
	// in "openaicompat/text-embedding-3-small").
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)

	// Dimension resolves the output width of model, probing with a
	// single throwaway embedding call if the variant does not know it
	// statically.
	Dimension(ctx context.Context, model string) (int, error)

	// MaxBatchInputs caps how many inputs one Embed call may carry.
	MaxBatchInputs() int

	// MaxInputTokens caps how many tokens one input may carry before
	// the caller must truncate it.
	MaxInputTokens() int

	// Retryable reports whether err is worth retrying (429, 5xx,
	// connection reset) as opposed to a permanent failure.
	Retryable(err error) bool
}

// Config carries the credentials and endpoints every variant might need.
// Unused fields are ignored by variants that don't need them.
type Config struct {
	OpenAIAPIKey   string
	CohereAPIKey   string
	VoyageAPIKey   string
	OllamaBaseURL  string
	STBaseURL      string // sentencetransformers HTTP service
	PortkeyAPIKey  string
	PortkeyVirtual string
	PortkeyBaseURL string
}

const (
	VariantOpenAICompat         = "openaicompat"
	VariantCohere               = "cohere"
	VariantVoyage               = "voyage"
	VariantOllama               = "ollama"
	VariantSentenceTransformers = "sentencetransformers"
	VariantPortkey              = "portkey"
)

// Variants lists every supported provider variant name.
func Variants() []string {
	return []string{
		VariantOpenAICompat, VariantCohere, VariantVoyage,
		VariantOllama, VariantSentenceTransformers, VariantPortkey,
	}
}

// New resolves variant to a concrete Provider using the relevant fields
// of cfg.
func New(variant string, cfg Config) (Provider, error) {
	switch variant {
	case VariantOpenAICompat:
		return openaicompat.New(openaicompat.Config{APIKey: cfg.OpenAIAPIKey}), nil
	case VariantCohere:
		return cohere.New(cohere.Config{APIKey: cfg.CohereAPIKey}), nil
	case VariantVoyage:
		return voyage.New(voyage.Config{APIKey: cfg.VoyageAPIKey}), nil
	case VariantOllama:
		return ollama.New(ollama.Config{BaseURL: cfg.OllamaBaseURL}), nil
	case VariantSentenceTransformers:
		return sentencetransformers.New(sentencetransformers.Config{BaseURL: cfg.STBaseURL}), nil
	case VariantPortkey:
		return portkey.New(portkey.Config{
			APIKey:     cfg.PortkeyAPIKey,
			VirtualKey: cfg.PortkeyVirtual,
			BaseURL:    cfg.PortkeyBaseURL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider variant %q (supported: %v)", variant, Variants())
	}
}

// ParseTransformer splits a transformer string of the form
// "<variant>/<model>" into its variant and model parts.
func ParseTransformer(transformer string) (variant, model string, err error) {
	parts := strings.SplitN(transformer, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed transformer %q (want \"<variant>/<model>\")", transformer)
	}
	return parts[0], parts[1], nil
}

// TruncateToTokens truncates text to approximately maxTokens, using the
// same rough chars-per-token heuristic (4 chars/token) the teacher's
// pkg/utils.Truncate uses for prompt budgeting, since none of the
// providers expose a free tokenizer over HTTP.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}
