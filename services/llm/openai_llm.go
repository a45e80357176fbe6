// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brandpulse/brandpulse/services/insights/datatypes"
	"github.com/sashabaranov/go-openai"
)

// systemPrompt pins the provider to the JSON envelope the parser expects.
const systemPrompt = "You are a supply-chain operations analyst for a consumer brand. " +
	"Respond with a single JSON object only, no markdown, with keys: " +
	`"analysis" (string), "recommendations" (array of strings), ` +
	`"highlights" (array of strings), "risk_level" (low|medium|high), "confidence" (low|medium|high).`

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	// APIKey for the provider. May be empty: the client still constructs
	// and every Ask returns a degraded value with KindMissingCredential,
	// so the service boots without LLM configuration.
	APIKey string

	// Model is the chat-completion model, e.g. "gpt-4o-mini".
	Model string

	// BaseURL overrides the provider endpoint (OpenAI-compatible
	// gateways, local inference servers). Empty uses the default.
	BaseURL string
}

// OpenAIClient implements Client over the OpenAI chat-completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	hasKey bool
}

// NewOpenAIClient builds the client. Construction never fails; credential
// problems surface per-call as KindMissingCredential.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("LLM_MODEL_FAST not set, defaulting to gpt-4o-mini")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	slog.Info("Initializing OpenAI insight client", "model", model, "has_key", cfg.APIKey != "")
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		hasKey: cfg.APIKey != "",
	}
}

// Ask implements the Client interface.
//
// The call is bounded by the budget's wall-clock timeout; on expiry the
// outbound request is cancelled and the degraded value is returned with
// KindTimeout. No retries happen here.
func (o *OpenAIClient) Ask(ctx context.Context, prompt string, schema datatypes.InsightSchema,
	budget Budget) (datatypes.InsightValue, *AskError) {

	if !o.hasKey {
		return schema.DegradedValue("missing credential"), &AskError{
			Kind: KindMissingCredential,
			Err:  errors.New("LLM_API_KEY not configured"),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, budget.timeout())
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   budget.maxTokens(),
		Temperature: budget.Temperature,
	}

	resp, err := o.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return schema.DegradedValue(err.Error()), o.classify(err, callCtx)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("Provider returned no choices", "model", o.model)
		return schema.DegradedValue("empty response"), &AskError{
			Kind: KindParseFailure,
			Err:  errors.New("provider returned no choices"),
		}
	}

	value, ok := parsePayload(resp.Choices[0].Message.Content, schema)
	if !ok {
		slog.Warn("Provider payload was not parseable JSON", "model", o.model, "namespace", schema.Namespace)
		return value, &AskError{
			Kind: KindParseFailure,
			Err:  fmt.Errorf("payload for %s was not a JSON object", schema.Namespace),
		}
	}

	slog.Debug("Received insight from provider",
		"model", o.model, "namespace", schema.Namespace, "finish_reason", resp.Choices[0].FinishReason)
	return value, nil
}

// classify maps a transport error to an error kind.
func (o *OpenAIClient) classify(err error, callCtx context.Context) *AskError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &AskError{Kind: KindTimeout, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &AskError{Kind: KindUpstreamStatus, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &AskError{Kind: KindUpstreamStatus, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	return &AskError{Kind: KindUpstreamStatus, Err: err}
}

var _ Client = (*OpenAIClient)(nil)
