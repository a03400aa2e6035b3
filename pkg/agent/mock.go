package agent

import (
	"context"
	"fmt"
)

// MockExecutor stands in when no real provider is usable. It echoes a
// deterministic transcript containing the prompt so every downstream step
// (masking, confidence, evidence) still has material to work on.
type MockExecutor struct{}

func (MockExecutor) RunChat(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out := fmt.Sprintf("[mock agent]\n%s\n", prompt)
	if onChunk != nil {
		onChunk(out)
	}
	return out, nil
}
