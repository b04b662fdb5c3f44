// Package llm provides an HTTP client for OpenAI-compatible chat completion
// APIs, such as the Hugging Face inference router.
package llm

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions contains optional parameters for a chat completion.
type CompletionOptions struct {
	SystemPrompt string  // Prepended as a system message when set
	MaxTokens    int     // Upper bound on generated tokens (default: 1024)
	Temperature  float64 // Sampling temperature (default: 0.7)
}

// DefaultCompletionOptions returns the default completion options.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// chatRequest represents the request body for /chat/completions.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// chatResponse represents the response from /chat/completions.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
