package toolsvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loomwork/loomwork/model"
)

// HTTPTool makes GET/POST requests and returns the response status and body
// as a TOOL message's content; response headers are not included.
type HTTPTool struct {
	client *http.Client
	labels []string
}

// NewHTTPTool constructs an HTTPTool with the given labels (for task-tag
// filtering); pass nil for an unlabeled, always-visible tool.
func NewHTTPTool(labels ...string) *HTTPTool {
	return &HTTPTool{client: &http.Client{}, labels: labels}
}

func (h *HTTPTool) Name() string        { return "http_request" }
func (h *HTTPTool) Description() string { return "Makes an HTTP GET or POST request and returns the response." }
func (h *HTTPTool) Labels() []string    { return h.labels }

func (h *HTTPTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method":  map[string]any{"type": "string", "description": "GET or POST, defaults to GET"},
			"url":     map[string]any{"type": "string", "description": "target URL"},
			"headers": map[string]any{"type": "object", "description": "optional request headers"},
			"body":    map[string]any{"type": "string", "description": "optional request body"},
		},
		"required": []string{"url"},
	}
}

// Call executes the request described by input.
func (h *HTTPTool) Call(ctx context.Context, input map[string]any) (model.Message, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return errMessage("url parameter required (string)"), nil
	}

	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != "GET" && method != "POST" {
		return errMessage(fmt.Sprintf("unsupported HTTP method: %s (supported: GET, POST)", method)), nil
	}

	var body io.Reader
	if bodyStr, ok := input["body"].(string); ok && bodyStr != "" {
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return model.Message{}, fmt.Errorf("toolsvc: building request: %w", err)
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for key, value := range headers {
			if valueStr, ok := value.(string); ok {
				req.Header.Set(key, valueStr)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return errMessage(fmt.Sprintf("request failed: %v", err)), nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Message{}, fmt.Errorf("toolsvc: reading response body: %w", err)
	}

	text := fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(respBody))
	return model.Message{Role: model.RoleTool, Content: []model.Block{model.TextBlock(text)}}, nil
}

func errMessage(text string) model.Message {
	return model.Message{Role: model.RoleTool, Content: []model.Block{model.TextBlock(text)}, IsError: true}
}
