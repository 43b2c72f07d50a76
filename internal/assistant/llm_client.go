package assistant

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	// JSON asks the model for an application/json response.
	JSON bool
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// StubClient answers every request with Reply. Used when no model key is configured.
type StubClient struct {
	Reply string
}

func (s StubClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	reply := s.Reply
	if reply == "" {
		reply = "<p>Thanks for your question! A SquareYards expert will follow up with details for your city.</p>"
	}
	return LLMResponse{Text: reply, StopReason: "stub"}, nil
}
