package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeUnwrapping(t *testing.T) {
	wrapped := fmt.Errorf("chat 2 failed: %w", &ExitError{Code: 42})
	code, ok := ExitCode(wrapped)
	require.True(t, ok)
	assert.Equal(t, 42, code)

	_, ok = ExitCode(errors.New("no exit code here"))
	assert.False(t, ok)
}

func TestPermanentClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("killed: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, true},
		{"sigkill", &ExitError{Code: ExitKilled}, true},
		{"sigterm", &ExitError{Code: ExitTerminated}, true},
		{"plain non-zero exit", &ExitError{Code: 1}, false},
		{"arbitrary error", errors.New("api hiccup"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.permanent, permanent(tt.err))
		})
	}
}

func TestMockExecutorEchoesPrompt(t *testing.T) {
	var chunk string
	out, err := MockExecutor{}.RunChat(context.Background(), "say hello", func(c string) { chunk = c })
	require.NoError(t, err)
	assert.Contains(t, out, "say hello")
	assert.Equal(t, out, chunk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = MockExecutor{}.RunChat(ctx, "p", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
