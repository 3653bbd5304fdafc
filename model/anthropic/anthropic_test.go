package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/loomwork/loomwork/model"
)

func TestNewChatModel_DefaultModelName(t *testing.T) {
	m := NewChatModel("test-key", "")
	if m == nil {
		t.Fatal("expected non-nil model")
	}
	if m.modelName != defaultModel {
		t.Fatalf("modelName = %q, want %q", m.modelName, defaultModel)
	}
}

func TestCompletion_SendsMessagesAndReturnsResponse(t *testing.T) {
	mock := &mockAnthropicClient{response: model.NewTextMessage(model.RoleAssistant, "Hello! I'm Claude.")}
	m := &ChatModel{client: mock, modelName: defaultModel}

	out, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "hi there")}, model.CompletionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text() != "Hello! I'm Claude." {
		t.Fatalf("Text() = %q", out.Text())
	}
	if mock.callCount != 1 {
		t.Fatalf("callCount = %d, want 1", mock.callCount)
	}
}

func TestCompletion_ToolCallsInResponse(t *testing.T) {
	mock := &mockAnthropicClient{response: model.Message{
		Role:       model.RoleAssistant,
		ToolCalls:  []model.ToolCallRequest{{Name: "search", Args: map[string]any{"query": "test"}}},
		StopReason: model.StopReasonToolCall,
	}}
	m := &ChatModel{client: mock, modelName: defaultModel}

	cfg := model.CompletionConfig{Tools: []model.Tool{{Name: "search", Description: "search the web"}}}
	out, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "search for test")}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "search" {
		t.Fatalf("ToolCalls = %+v", out.ToolCalls)
	}
}

func TestCompletion_RespectsContextCancellation(t *testing.T) {
	mock := &mockAnthropicClient{response: model.NewTextMessage(model.RoleAssistant, "ignored")}
	m := &ChatModel{client: mock, modelName: defaultModel}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Completion(ctx, []model.Message{model.NewTextMessage(model.RoleUser, "test")}, model.CompletionConfig{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestCompletion_TranslatesAnthropicErrors(t *testing.T) {
	apiErr := &anthropicError{Type: "overloaded_error", Message: "service temporarily overloaded"}
	mock := &mockAnthropicClient{err: apiErr}
	m := &ChatModel{client: mock, modelName: defaultModel}

	_, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "test")}, model.CompletionConfig{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var translated *anthropicError
	if !errors.As(err, &translated) {
		t.Fatalf("expected anthropicError, got %T", err)
	}
	if translated.Type != "overloaded_error" {
		t.Fatalf("Type = %q, want overloaded_error", translated.Type)
	}
}

func TestCompletion_EmptyAPIKey(t *testing.T) {
	m := NewChatModel("", defaultModel)
	_, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "test")}, model.CompletionConfig{})
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestExtractSystemPrompt(t *testing.T) {
	mock := &mockAnthropicClient{response: model.NewTextMessage(model.RoleAssistant, "ok")}
	m := &ChatModel{client: mock, modelName: defaultModel}

	messages := []model.Message{
		model.NewTextMessage(model.RoleSystem, "you are helpful"),
		model.NewTextMessage(model.RoleUser, "user message"),
	}
	_, err := m.Completion(context.Background(), messages, model.CompletionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.systemPrompt != "you are helpful" {
		t.Fatalf("systemPrompt = %q", mock.systemPrompt)
	}
	if len(mock.lastMessages) != 1 {
		t.Fatalf("lastMessages = %d, want 1 (user only)", len(mock.lastMessages))
	}
}

func TestConvertToolInput(t *testing.T) {
	if got := convertToolInput(nil); got != nil {
		t.Fatalf("convertToolInput(nil) = %+v, want nil", got)
	}
	if got := convertToolInput(map[string]any{"a": 1}); got["a"] != 1 {
		t.Fatalf("convertToolInput(map) = %+v", got)
	}
	if got := convertToolInput("raw string"); got["_raw"] != "raw string" {
		t.Fatalf("convertToolInput(non-map) = %+v", got)
	}
}

type mockAnthropicClient struct {
	response     model.Message
	err          error
	callCount    int
	lastMessages []model.Message
	systemPrompt string
}

func (m *mockAnthropicClient) createMessage(_ context.Context, systemPrompt string, messages []model.Message, _ model.CompletionConfig) (model.Message, error) {
	m.callCount++
	m.lastMessages = messages
	m.systemPrompt = systemPrompt
	if m.err != nil {
		return model.Message{}, m.err
	}
	return m.response, nil
}
