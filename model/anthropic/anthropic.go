// Package anthropic provides a model.ChatModel adapter for Anthropic's
// Claude API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/loomwork/loomwork/model"
)

// defaultModel is used when NewChatModel is called with an empty modelName.
const defaultModel = "claude-sonnet-4-5-20250929"

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// It handles: block-delimiter wrapping of consecutive same-role messages
// (the core's message protocol), system-prompt extraction
// (Anthropic takes the system prompt as a separate parameter, not in the
// messages array), tool schema translation honoring ExcludeTools/ToolChoice,
// and stop-reason/usage normalization.
type ChatModel struct {
	apiKey    string
	modelName string
	client    anthropicClient
}

// anthropicClient is the narrow interface ChatModel depends on, so tests
// can substitute a fake without touching the real SDK.
type anthropicClient interface {
	createMessage(ctx context.Context, systemPrompt string, messages []model.Message, cfg model.CompletionConfig) (model.Message, error)
}

// NewChatModel creates an Anthropic-backed ChatModel. An empty modelName
// falls back to defaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey, modelName: modelName},
	}
}

// Completion implements model.ChatModel.
func (m *ChatModel) Completion(ctx context.Context, messages []model.Message, cfg model.CompletionConfig) (model.Message, error) {
	if ctx.Err() != nil {
		return model.Message{}, ctx.Err()
	}

	systemPrompt, conversation := extractSystemPrompt(messages)

	out, err := m.client.createMessage(ctx, systemPrompt, conversation, cfg)
	if err != nil {
		var apiErr *anthropicError
		if errors.As(err, &apiErr) {
			return model.Message{}, translateAnthropicError(apiErr)
		}
		return model.Message{}, err
	}
	return out, nil
}

// extractSystemPrompt pulls every system message out of the conversation
// and concatenates them, since Anthropic expects system prompts as a
// separate top-level parameter rather than inline in the messages array.
func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var systemPrompt string
	var conversation []model.Message

	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Text()
			continue
		}
		conversation = append(conversation, msg)
	}
	return systemPrompt, conversation
}

// wrapBlockDelimiter wraps text in <block>...</block> so the provider can
// distinguish consecutive same-role messages, per the core's required
// message protocol.
func wrapBlockDelimiter(text string) string {
	return "<block>" + text + "</block>"
}

// defaultClient wraps the official Anthropic SDK client.
type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) createMessage(ctx context.Context, systemPrompt string, messages []model.Message, cfg model.CompletionConfig) (model.Message, error) {
	if c.apiKey == "" {
		return model.Message{}, errors.New("anthropic: API key is required")
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  convertMessages(messages),
		MaxTokens: maxTokens,
	}
	if cfg.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(cfg.Temperature)
	}
	if cfg.TopP > 0 {
		params.TopP = anthropicsdk.Float(cfg.TopP)
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	tools := cfg.VisibleTools()
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	if cfg.ToolChoice != "" {
		params.ToolChoice = anthropicsdk.ToolChoiceUnionParam{
			OfTool: &anthropicsdk.ToolChoiceToolParam{Name: cfg.ToolChoice},
		}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.Message{}, fmt.Errorf("anthropic: API error: %w", err)
	}
	return convertResponse(resp), nil
}

// convertMessages converts core Message values to Anthropic's format,
// applying the block-delimiter wrapping convention.
func convertMessages(messages []model.Message) []anthropicsdk.MessageParam {
	result := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		text := wrapBlockDelimiter(msg.Text())
		switch msg.Role {
		case model.RoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(text)))
		default:
			result = append(result, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(text)))
		}
	}
	return result
}

// convertTools converts core Tool values into Anthropic's tool schema.
func convertTools(tools []model.Tool) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		var properties any
		var required []string
		if t.Schema != nil {
			if props, ok := t.Schema["properties"]; ok {
				properties = props
			}
			if req, ok := t.Schema["required"].([]string); ok {
				required = req
			} else if req, ok := t.Schema["required"].([]interface{}); ok {
				required = make([]string, 0, len(req))
				for _, v := range req {
					if s, ok := v.(string); ok {
						required = append(required, s)
					}
				}
			}
		}
		result[i] = anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{Properties: properties, Required: required},
			},
		}
	}
	return result
}

// convertResponse converts Anthropic's Message response into the core
// Message shape, classifying stop reason and usage.
func convertResponse(resp *anthropicsdk.Message) model.Message {
	out := model.Message{Role: model.RoleAssistant}

	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			out.Content = append(out.Content, model.TextBlock(b.Text))
		case anthropicsdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, model.ToolCallRequest{
				ID:   b.ID,
				Name: b.Name,
				Args: convertToolInput(b.Input),
				Type: "function",
			})
		}
	}

	if len(out.ToolCalls) > 0 {
		out.StopReason = model.StopReasonToolCall
	} else {
		switch resp.StopReason {
		case anthropicsdk.StopReasonMaxTokens:
			out.StopReason = model.StopReasonLength
		default:
			out.StopReason = model.StopReasonStop
		}
	}

	out.Usage = model.CompletionUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return out
}

// convertToolInput normalizes Anthropic's arbitrary tool-input payload into
// a map, wrapping non-map payloads rather than dropping them.
func convertToolInput(input interface{}) map[string]any {
	if input == nil {
		return nil
	}
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return map[string]any{"_raw": input}
}

// anthropicError represents a translated Anthropic API error.
type anthropicError struct {
	Type    string
	Message string
}

func (e *anthropicError) Error() string { return e.Type + ": " + e.Message }

// translateAnthropicError passes the error through with its type
// information preserved; a richer adapter could map specific types
// (rate_limit_error, overloaded_error, …) to sentinel errors callers can
// check with errors.Is.
func translateAnthropicError(err *anthropicError) error { return err }
