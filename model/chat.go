// Package model provides the message, tool-call, and completion-config data
// model shared by every LLM adapter, plus the ChatModel interface the core
// consumes and a MockChatModel for tests.
package model

import "context"

// Role identifies the sender of a Message.
type Role string

// Standard role constants, aligned with the conventions used by major LLM
// providers. RoleTool is used for messages carrying a tool's result back
// into the conversation.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// StopReason classifies why an LLM stopped generating.
type StopReason string

const (
	StopReasonStop          StopReason = "stop"
	StopReasonLength        StopReason = "length"
	StopReasonToolCall      StopReason = "tool_call"
	StopReasonContentFilter StopReason = "content_filter"
)

// Block is a sum type over the content a Message may carry. Exactly one of
// Text, ImageURL/ImageBase64, or VideoURL is set, determined by Kind.
type Block struct {
	Kind BlockKind

	Text string

	// ImageURL or ImageBase64 is set when Kind == BlockImage. At most one
	// should be populated.
	ImageURL    string
	ImageBase64 string

	// VideoURL is set when Kind == BlockVideo.
	VideoURL string
}

// BlockKind discriminates Block's variant.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockImage
	BlockVideo
)

// TextBlock constructs a text content block.
func TextBlock(text string) Block { return Block{Kind: BlockText, Text: text} }

// ImageBlock constructs an image content block from a URL or base64 payload
// (pass whichever the caller has; the unused field stays empty).
func ImageBlock(url, base64 string) Block {
	return Block{Kind: BlockImage, ImageURL: url, ImageBase64: base64}
}

// VideoBlock constructs a video content block.
func VideoBlock(url string) Block { return Block{Kind: BlockVideo, VideoURL: url} }

// ToolCallRequest is a single tool invocation requested by the LLM as part
// of an assistant message.
type ToolCallRequest struct {
	ID   string
	Name string
	Args map[string]any
	Type string
}

// CompletionUsage reports token accounting for one completion call. A
// provider that does not report usage should leave all fields at their
// sentinel zero value rather than fabricating numbers.
type CompletionUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Message is the core unit of LLM conversation history. Content is ordered
// (a message may mix text and image blocks); ToolCalls is populated on
// assistant messages that request tool invocations; ToolCallID identifies
// which request a tool-role message is replying to.
type Message struct {
	Role       Role
	Content    []Block
	ToolCalls  []ToolCallRequest
	ToolCallID string
	StopReason StopReason
	Usage      CompletionUsage
	IsError    bool
}

// Text concatenates every text block's content, ignoring non-text blocks.
// Convenience for the common case of a plain-text message.
func (m Message) Text() string {
	out := ""
	for _, b := range m.Content {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// NewTextMessage builds a single-block text message with the given role.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Block{TextBlock(text)}}
}

// Tool describes one capability an LLM may invoke, as advertised by a
// ToolService. Schema follows JSON Schema conventions.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	// Labels tags this tool for filtering against a task's tags, so an
	// agent can narrow its visible tool set to those matching the task
	// at hand.
	Labels []string
}

// CompletionConfig enumerates every knob an adapter must understand. Zero
// values mean "use the provider's default" for every field except Tools
// and ExcludeTools: a nil/empty Tools means "no tools", and a nil/empty
// ExcludeTools means no tool is excluded.
type CompletionConfig struct {
	Model            string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	FrequencyPenalty float64
	FormatJSON       bool
	AllowThinking    bool
	Tools            []Tool
	ExcludeTools     map[string]struct{}
	ToolChoice       string
}

// VisibleTools returns Tools, in their original order, with every name in
// ExcludeTools filtered out. ToolChoice is not applied here. Adapters should call this rather than reading Tools/ExcludeTools directly.
func (c CompletionConfig) VisibleTools() []Tool {
	if len(c.ExcludeTools) == 0 {
		return c.Tools
	}
	out := make([]Tool, 0, len(c.Tools))
	for _, t := range c.Tools {
		if _, excluded := c.ExcludeTools[t.Name]; excluded {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ChatModel defines the interface every LLM provider adapter implements.
//
// Implementations must:
//   - Wrap each input message's content in a block delimiter (e.g.
//     "<block>…</block>") so the provider can distinguish consecutive
//     same-role messages, per the core's message protocol.
//   - Translate config.Tools into the provider-native tool schema,
//     excluding names in config.ExcludeTools, and force config.ToolChoice
//     when set.
//   - Honor config.FormatJSON by requesting a strict-JSON response when
//     the provider supports it.
//   - Report StopReason using StopReasonToolCall whenever the response
//     includes any tool calls, regardless of what the provider itself
//     calls that state.
//   - Populate Usage, or leave it zeroed if the provider does not report
//     token counts.
type ChatModel interface {
	Completion(ctx context.Context, messages []Message, config CompletionConfig) (Message, error)
}

// Embedder is the optional interface memory hooks use to turn content into
// vectors. It is never called by the core itself — persistent memory is an
// external collaborator reached only from Agent hooks.
type Embedder interface {
	Embed(ctx context.Context, content string, dimensions int) ([]float32, error)
	EmbedBatch(ctx context.Context, content []string, dimensions int) ([][]float32, error)
}
