// Package google provides a model.ChatModel adapter for Google's Gemini
// API.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/loomwork/loomwork/model"
)

// defaultModel is used when NewChatModel is called with an empty modelName.
const defaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API. A response
// blocked by the safety filter is returned as an error-flagged message with
// StopReason set to the content-filter reason, not as a Go error.
type ChatModel struct {
	apiKey    string
	modelName string
	client    googleClient
}

// googleClient is the narrow interface ChatModel depends on, so tests can
// substitute a fake without touching the real SDK.
type googleClient interface {
	generateContent(ctx context.Context, messages []model.Message, cfg model.CompletionConfig) (model.Message, error)
}

// NewChatModel creates a Gemini-backed ChatModel. An empty modelName falls
// back to defaultModel.
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

	out, err := m.client.generateContent(ctx, messages, cfg)
	if err != nil {
		var safetyErr *SafetyFilterError
		if errors.As(err, &safetyErr) {
			return model.Message{}, safetyErr
		}
		return model.Message{}, err
	}
	return out, nil
}

// wrapBlockDelimiter wraps text in <block>...</block> so the provider can
// distinguish consecutive same-role messages, per the core's message
// protocol.
func wrapBlockDelimiter(text string) string { return "<block>" + text + "</block>" }

// defaultClient wraps the official Gemini SDK client.
type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) generateContent(ctx context.Context, messages []model.Message, cfg model.CompletionConfig) (model.Message, error) {
	if c.apiKey == "" {
		return model.Message{}, errors.New("google: API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.Message{}, fmt.Errorf("google: failed to create client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(c.modelName)
	if cfg.Temperature > 0 {
		genModel.SetTemperature(float32(cfg.Temperature))
	}
	if cfg.TopP > 0 {
		genModel.SetTopP(float32(cfg.TopP))
	}
	if cfg.MaxTokens > 0 {
		genModel.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}
	if cfg.FormatJSON {
		genModel.ResponseMIMEType = "application/json"
	}

	systemPrompt, conversation := extractSystemPrompt(messages)
	if systemPrompt != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	tools := cfg.VisibleTools()
	if len(tools) > 0 {
		genModel.Tools = convertTools(tools)
	}
	if cfg.ToolChoice != "" {
		genModel.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingAny,
				AllowedFunctionNames: []string{cfg.ToolChoice},
			},
		}
	}

	parts := convertMessages(conversation)
	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return model.Message{}, fmt.Errorf("google: API error: %w", err)
	}
	return convertResponse(resp), nil
}

// extractSystemPrompt pulls every system message out of the conversation
// and concatenates them, since Gemini expects system instructions as a
// separate model-level field rather than inline in the content list.
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

// convertMessages converts core Message values into Gemini parts, applying
// the block-delimiter wrapping convention to each message's flattened text.
func convertMessages(messages []model.Message) []genai.Part {
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		parts = append(parts, genai.Text(wrapBlockDelimiter(text)))
	}
	return parts
}

// convertTools converts core Tool values into Gemini's function-declaration
// schema.
func convertTools(tools []model.Tool) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema converts a JSON-schema map into genai.Schema, recursing one
// level into object properties (enough for the flat argument schemas tools
// typically advertise).
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	result := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]any); ok {
		properties := make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			propMap, ok := val.(map[string]any)
			if !ok {
				continue
			}
			propSchema := &genai.Schema{}
			if typeStr, ok := propMap["type"].(string); ok {
				propSchema.Type = convertTypeString(typeStr)
			}
			if desc, ok := propMap["description"].(string); ok {
				propSchema.Description = desc
			}
			properties[key] = propSchema
		}
		result.Properties = properties
	}

	if required, ok := schema["required"].([]string); ok {
		result.Required = required
	} else if required, ok := schema["required"].([]any); ok {
		out := make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		result.Required = out
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// convertResponse converts Gemini's GenerateContentResponse into the core
// Message shape, classifying stop reason and usage.
func convertResponse(resp *genai.GenerateContentResponse) model.Message {
	out := model.Message{Role: model.RoleAssistant, StopReason: model.StopReasonStop}
	if len(resp.Candidates) == 0 {
		return out
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return model.Message{Role: model.RoleAssistant, IsError: true, StopReason: model.StopReasonContentFilter}
	}

	if candidate.Content != nil {
		var text string
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text += string(p)
			case genai.FunctionCall:
				out.ToolCalls = append(out.ToolCalls, model.ToolCallRequest{
					Name: p.Name,
					Args: p.Args,
					Type: "function",
				})
			}
		}
		if text != "" {
			out.Content = []model.Block{model.TextBlock(text)}
		}
	}

	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = model.StopReasonToolCall
	case candidate.FinishReason == genai.FinishReasonMaxTokens:
		out.StopReason = model.StopReasonLength
	default:
		out.StopReason = model.StopReasonStop
	}

	if resp.UsageMetadata != nil {
		out.Usage = model.CompletionUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}

// SafetyFilterError represents a Gemini safety-filter block. Use errors.As
// to detect it and branch on Category.
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string { return e.category }

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string { return e.reason }
