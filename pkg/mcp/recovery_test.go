package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected RecoveryAction
	}{
		{name: "nil", err: nil, expected: NoRetry},
		{name: "context canceled", err: context.Canceled, expected: NoRetry},
		{name: "deadline exceeded", err: context.DeadlineExceeded, expected: NoRetry},
		{
			name:     "wrapped cancel",
			err:      errors.Join(errors.New("call failed"), context.Canceled),
			expected: NoRetry,
		},
		{name: "EOF from dead stdio child", err: io.EOF, expected: RetryNewSession},
		{name: "unexpected EOF", err: io.ErrUnexpectedEOF, expected: RetryNewSession},
		{
			name:     "broken pipe",
			err:      errors.New("write |1: broken pipe"),
			expected: RetryNewSession,
		},
		{
			name:     "closed pipe file",
			err:      errors.New("read |0: file already closed"),
			expected: RetryNewSession,
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:8080: connection refused"),
			expected: RetryNewSession,
		},
		{
			name:     "protocol method not found",
			err:      errors.New("JSON-RPC error: method not found"),
			expected: NoRetry,
		},
		{
			name:     "protocol invalid params",
			err:      errors.New("invalid params: missing required field"),
			expected: NoRetry,
		},
		{
			name:     "unknown",
			err:      errors.New("something unexpected happened"),
			expected: NoRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyError(tt.err))
		})
	}
}

type fakeNetError struct {
	msg     string
	timeout bool
}

func (e *fakeNetError) Error() string   { return e.msg }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

var _ net.Error = (*fakeNetError)(nil)

func TestClassifyNetError(t *testing.T) {
	// A timed-out server stays slow: no retry. A refused dial means the
	// transport is gone: re-dial.
	assert.Equal(t, NoRetry, ClassifyError(&fakeNetError{msg: "i/o timeout", timeout: true}))
	assert.Equal(t, RetryNewSession, ClassifyError(&fakeNetError{msg: "connection refused"}))
}
