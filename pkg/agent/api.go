package agent

import (
	"context"

	"github.com/codehive/swarmd/pkg/llm"
)

// APIExecutor runs chats against a hosted model API, streaming tokens
// through the chunk callback.
type APIExecutor struct {
	client *llm.Client
}

// NewAPIExecutor wraps an API client as an Executor.
func NewAPIExecutor(client *llm.Client) *APIExecutor {
	return &APIExecutor{client: client}
}

func (e *APIExecutor) RunChat(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	return e.client.Generate(ctx, prompt, onChunk)
}
