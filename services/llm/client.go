// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm wraps the chat-completion provider behind a single Ask call.
//
// The wrapper owns the hard wall-clock timeout, the JSON-envelope parsing,
// and graceful degradation. Retry policy deliberately does not live here:
// the insight cache decides when a failed slot may be recomputed.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind categorizes an Ask failure for slot bookkeeping and metrics.
type ErrorKind string

const (
	// KindTimeout means the wall-clock budget elapsed; the outbound
	// request was cancelled.
	KindTimeout ErrorKind = "timeout"

	// KindUpstreamStatus means the provider answered with an error status.
	KindUpstreamStatus ErrorKind = "upstream_status"

	// KindParseFailure means the provider answered but the payload did not
	// contain a parseable JSON object.
	KindParseFailure ErrorKind = "parse_failure"

	// KindMissingCredential means no API key is configured.
	KindMissingCredential ErrorKind = "missing_credential"
)

// AskError describes a failed Ask. It always accompanies a shaped degraded
// value, never replaces one.
type AskError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *AskError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *AskError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Budget
// =============================================================================

// DefaultTimeout is the hard wall-clock limit for one provider call.
const DefaultTimeout = 28 * time.Second

// Budget bounds one Ask call. Zero values use the defaults.
type Budget struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

func (b Budget) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultTimeout
	}
	return b.Timeout
}

func (b Budget) maxTokens() int {
	if b.MaxTokens <= 0 {
		return 1024
	}
	return b.MaxTokens
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the standard interface for any insight LLM backend.
//
// Ask never leaves the caller empty-handed: on any failure it returns the
// schema's degraded value alongside a non-nil *AskError. Callers may serve
// the value immediately and record the error on the cache slot.
type Client interface {
	Ask(ctx context.Context, prompt string, schema datatypes.InsightSchema, budget Budget) (datatypes.InsightValue, *AskError)
}
