// Package llm defines the two capability interfaces the core consumes
// from an external LLM provider: embed(text) and chat(messages, tools).
// No concrete provider ships here (spec.md §1 Non-goals); components
// depend only on these interfaces, matching the teacher's trait-object
// provider pattern (internal/perception's client interfaces) generalized
// to Mira's narrower two-method contract.
package llm

import "context"

// Message is one turn in a chat exchange.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
}

// ToolSpec describes a callable tool offered to Chat.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema-shaped
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Usage reports token accounting for a Chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Embedder is the embed(text) -> vector capability. internal/embedding
// adapts a concrete Embedder into its async Service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chatter is the chat(messages, tools) -> (text, tool_calls, usage)
// capability pondering's optional LLM-insight step and the expert
// passthrough tools consume.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (text string, calls []ToolCall, usage Usage, err error)
}

// Provider bundles both capabilities, matching spec.md §1's summary:
// "The core consumes two capabilities: embed(text) -> f32 vector and
// chat(messages, tools) -> (text, tool_calls, usage)."
type Provider interface {
	Embedder
	Chatter
}
