// Package llm wraps the hosted model APIs that providers with an api_backend
// run against. One Client is built per provider at pipeline start; the
// handle is safe for concurrent use by parallel agents.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/codehive/swarmd/pkg/config"
)

var (
	// ErrMissingAPIKey is returned when a provider maps to an API backend
	// but no key was configured for it.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrNoEmbeddings is returned when the backend cannot serve the
	// embedding requests hybrid confidence needs.
	ErrNoEmbeddings = errors.New("backend does not serve embeddings")
)

// Client is one provider's hosted model.
type Client struct {
	model   llms.Model
	backend config.APIBackend
	name    string
}

// NewClient builds a model client for the given backend. model may be empty
// to take the backend's default.
func NewClient(ctx context.Context, backend config.APIBackend, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w for backend %s", ErrMissingAPIKey, backend)
	}

	var (
		m   llms.Model
		err error
	)
	switch backend {
	case config.APIBackendOpenAI:
		opts := []openai.Option{openai.WithToken(apiKey)}
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		m, err = openai.New(opts...)
	case config.APIBackendAnthropic:
		opts := []anthropic.Option{anthropic.WithToken(apiKey)}
		if model != "" {
			opts = append(opts, anthropic.WithModel(model))
		}
		m, err = anthropic.New(opts...)
	case config.APIBackendGoogleAI:
		opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
		if model != "" {
			opts = append(opts, googleai.WithDefaultModel(model))
		}
		m, err = googleai.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown API backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s client: %w", backend, err)
	}

	slog.Debug("LLM client ready", "backend", backend, "model", model)
	return &Client{model: m, backend: backend, name: model}, nil
}

// Backend returns which hosted API this client talks to.
func (c *Client) Backend() config.APIBackend {
	return c.backend
}

// Generate produces a completion for the prompt. Chunks are passed to
// onChunk as the backend streams them; onChunk may be nil when the caller
// only wants the final text.
func (c *Client) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	var opts []llms.CallOption
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onChunk(string(chunk))
			return nil
		}))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", c.backend, err)
	}
	return out, nil
}

// NewEmbedder builds the embeddings client hybrid confidence scoring uses.
// Only the OpenAI and Google backends serve embeddings; Anthropic does not.
func NewEmbedder(ctx context.Context, backend config.APIBackend, apiKey, model string) (*embeddings.EmbedderImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w for backend %s", ErrMissingAPIKey, backend)
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch backend {
	case config.APIBackendOpenAI:
		opts := []openai.Option{openai.WithToken(apiKey)}
		if model != "" {
			opts = append(opts, openai.WithEmbeddingModel(model))
		}
		client, err = openai.New(opts...)
	case config.APIBackendGoogleAI:
		opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
		if model != "" {
			opts = append(opts, googleai.WithDefaultEmbeddingModel(model))
		}
		client, err = googleai.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoEmbeddings, backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s embedder: %w", backend, err)
	}
	return embeddings.NewEmbedder(client)
}
