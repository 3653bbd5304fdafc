// Package openai provides a model.ChatModel adapter for OpenAI's API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/loomwork/loomwork/model"
)

// ChatModel implements model.ChatModel for OpenAI's API, with automatic
// retry on transient errors (network issues, 5xx, rate limits).
type ChatModel struct {
	apiKey     string
	modelName  string
	client     openaiClient
	maxRetries int
	retryDelay time.Duration
}

// openaiClient is the narrow interface ChatModel depends on, so tests can
// substitute a fake without touching the real SDK.
type openaiClient interface {
	createChatCompletion(ctx context.Context, messages []model.Message, cfg model.CompletionConfig) (model.Message, error)
}

// NewChatModel creates an OpenAI-backed ChatModel with 3 retry attempts and
// a 1 second base retry delay. An empty modelName falls back to "gpt-4o".
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &ChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		client:     &defaultClient{apiKey: apiKey, modelName: modelName},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Completion implements model.ChatModel, retrying transient failures with
// linear backoff for rate limits.
func (m *ChatModel) Completion(ctx context.Context, messages []model.Message, cfg model.CompletionConfig) (model.Message, error) {
	if ctx.Err() != nil {
		return model.Message{}, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.client.createChatCompletion(ctx, messages, cfg)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransientError(err) {
			return model.Message{}, err
		}
		if attempt >= m.maxRetries {
			break
		}

		delay := m.retryDelay
		if isRateLimitError(err) {
			delay = m.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		}
	}

	return model.Message{}, fmt.Errorf("openai: failed after %d retries: %w", m.maxRetries, lastErr)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var rateLimitErr *rateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	msgLower := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "503", "502", "500"} {
		if strings.Contains(msgLower, pattern) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	var rateLimitErr *rateLimitError
	return errors.As(err, &rateLimitErr)
}

// rateLimitError represents an OpenAI rate-limit error.
type rateLimitError struct{ message string }

func (e *rateLimitError) Error() string { return e.message }

// wrapBlockDelimiter wraps text in <block>...</block> so the provider can
// distinguish consecutive same-role messages, per the core's message
// protocol.
func wrapBlockDelimiter(text string) string { return "<block>" + text + "</block>" }

// defaultClient wraps the official OpenAI SDK client.
type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) createChatCompletion(ctx context.Context, messages []model.Message, cfg model.CompletionConfig) (model.Message, error) {
	if c.apiKey == "" {
		return model.Message{}, errors.New("openai: API key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: convertMessages(messages),
	}
	if cfg.Temperature > 0 {
		params.Temperature = openaisdk.Float(cfg.Temperature)
	}
	if cfg.TopP > 0 {
		params.TopP = openaisdk.Float(cfg.TopP)
	}
	if cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(cfg.MaxTokens))
	}
	if cfg.FormatJSON {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	tools := cfg.VisibleTools()
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	if cfg.ToolChoice != "" {
		params.ToolChoice = openaisdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openaisdk.ChatCompletionNamedToolChoiceParam{
				Function: openaisdk.ChatCompletionNamedToolChoiceFunctionParam{Name: cfg.ToolChoice},
			},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Message{}, fmt.Errorf("openai: API error: %w", err)
	}
	return convertResponse(resp), nil
}

// convertMessages converts core Message values to OpenAI's format, applying
// the block-delimiter convention to every message's flattened text.
func convertMessages(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		text := wrapBlockDelimiter(msg.Text())
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openaisdk.SystemMessage(text)
		case model.RoleAssistant:
			result[i] = openaisdk.AssistantMessage(text)
		case model.RoleTool:
			result[i] = openaisdk.ToolMessage(text, msg.ToolCallID)
		default:
			result[i] = openaisdk.UserMessage(text)
		}
	}
	return result
}

// convertTools converts core Tool values into OpenAI's function-calling
// schema, excluding names per CompletionConfig.ExcludeTools (handled by the
// caller via VisibleTools).
func convertTools(tools []model.Tool) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		result[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openaisdk.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Schema),
			},
		}
	}
	return result
}

// convertResponse converts OpenAI's ChatCompletion response into the core
// Message shape, classifying stop reason and usage.
func convertResponse(resp *openaisdk.ChatCompletion) model.Message {
	out := model.Message{Role: model.RoleAssistant}
	if len(resp.Choices) == 0 {
		out.StopReason = model.StopReasonStop
		return out
	}

	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out.Content = []model.Block{model.TextBlock(choice.Message.Content)}
	}

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCallRequest{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: parseToolArgs(tc.Function.Arguments),
			Type: "function",
		})
	}

	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = model.StopReasonToolCall
	case choice.FinishReason == "length":
		out.StopReason = model.StopReasonLength
	case choice.FinishReason == "content_filter":
		out.StopReason = model.StopReasonContentFilter
	default:
		out.StopReason = model.StopReasonStop
	}

	out.Usage = model.CompletionUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out
}

// parseToolArgs parses the tool call's JSON arguments string into a map,
// tolerating an empty string (no arguments).
func parseToolArgs(jsonStr string) map[string]any {
	if jsonStr == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return map[string]any{"_raw": jsonStr}
	}
	return out
}
