package google

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
	mock := &mockGoogleClient{response: model.NewTextMessage(model.RoleAssistant, "the capital of France is Paris")}
	m := &ChatModel{client: mock, modelName: defaultModel}

	out, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "what is the capital of France?")}, model.CompletionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text() != "the capital of France is Paris" {
		t.Fatalf("Text() = %q", out.Text())
	}
	if mock.callCount != 1 {
		t.Fatalf("callCount = %d, want 1", mock.callCount)
	}
}

func TestCompletion_ToolCallsInResponse(t *testing.T) {
	mock := &mockGoogleClient{response: model.Message{
		Role:       model.RoleAssistant,
		ToolCalls:  []model.ToolCallRequest{{Name: "search", Args: map[string]any{"query": "test"}}},
		StopReason: model.StopReasonToolCall,
	}}
	m := &ChatModel{client: mock, modelName: defaultModel}

	cfg := model.CompletionConfig{Tools: []model.Tool{{Name: "search"}}}
	out, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "search for test")}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "search" {
		t.Fatalf("ToolCalls = %+v", out.ToolCalls)
	}
}

func TestCompletion_RespectsContextCancellation(t *testing.T) {
	mock := &mockGoogleClient{response: model.NewTextMessage(model.RoleAssistant, "ignored")}
	m := &ChatModel{client: mock, modelName: defaultModel}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Completion(ctx, []model.Message{model.NewTextMessage(model.RoleUser, "test")}, model.CompletionConfig{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestCompletion_SafetyFilterError(t *testing.T) {
	mock := &mockGoogleClient{err: &SafetyFilterError{reason: "SAFETY", category: "HARM_CATEGORY_DANGEROUS_CONTENT"}}
	m := &ChatModel{client: mock, modelName: defaultModel}

	_, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "test")}, model.CompletionConfig{})
	var safetyErr *SafetyFilterError
	if !errors.As(err, &safetyErr) {
		t.Fatalf("expected SafetyFilterError, got %T: %v", err, err)
	}
	if safetyErr.Category() != "HARM_CATEGORY_DANGEROUS_CONTENT" {
		t.Fatalf("Category() = %q", safetyErr.Category())
	}
}

func TestCompletion_EmptyAPIKey(t *testing.T) {
	m := NewChatModel("", defaultModel)
	_, err := m.Completion(context.Background(), []model.Message{model.NewTextMessage(model.RoleUser, "test")}, model.CompletionConfig{})
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestConvertSchema(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search text"},
		},
		"required": []any{"query"},
	}
	got := convertSchema(schema)
	if got == nil {
		t.Fatal("expected non-nil schema")
	}
	if len(got.Properties) != 1 {
		t.Fatalf("Properties = %+v, want 1 entry", got.Properties)
	}
	if len(got.Required) != 1 || got.Required[0] != "query" {
		t.Fatalf("Required = %+v, want [query]", got.Required)
	}
}

type mockGoogleClient struct {
	response     model.Message
	err          error
	callCount    int
	lastMessages []model.Message
}

func (m *mockGoogleClient) generateContent(_ context.Context, messages []model.Message, _ model.CompletionConfig) (model.Message, error) {
	m.callCount++
	m.lastMessages = messages
	if m.err != nil {
		return model.Message{}, m.err
	}
	return m.response, nil
}
