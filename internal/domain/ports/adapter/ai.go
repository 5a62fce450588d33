package adapter

import "context"

// Message mirrors the chat shape every provider understands.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ModelAdapter is the language-model collaborator the extraction steps
// call. Implementations live under internal/infra/adapters/ai.
type ModelAdapter interface {
	Name() string
	Complete(ctx context.Context, messages []Message) (string, Usage, error)
	CountTokens(ctx context.Context, text string) (int, error)
}
