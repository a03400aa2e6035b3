package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// RecoveryAction says how CallTool handles a failure.
type RecoveryAction int

const (
	// NoRetry — not recoverable: bad request, auth failure, timeout.
	NoRetry RecoveryAction = iota
	// RetrySameSession — transient, the session is still good.
	RetrySameSession
	// RetryNewSession — the transport broke; recreate the session first.
	RetryNewSession
)

// ClassifyError picks the recovery action for an MCP call failure.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			// A slow server stays slow; retrying just doubles the wait.
			return NoRetry
		}
		return RetryNewSession
	}

	if isConnectionError(err) {
		return RetryNewSession
	}

	if isProtocolError(err) {
		return NoRetry
	}

	// Unknown errors are not safe to retry.
	return NoRetry
}

// isConnectionError detects transport-level failures. Stdio children that
// died show up as EOF or closed-pipe errors.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, e := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"file already closed",
		"transport closed",
	} {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}

// isProtocolError detects JSON-RPC level errors from the SDK. Those are
// caller mistakes and never worth a retry.
func isProtocolError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"method not found",
		"invalid params",
		"invalid request",
		"parse error",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
