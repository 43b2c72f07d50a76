package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

var errNoContent = errors.New("assistant: gemini returned no content")

// GeminiClient implements LLMClient with one-shot GenerateContent calls.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("assistant: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

// Complete sends the request's user messages as the parts of a single turn.
func (c *GeminiClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	parts := promptParts(req.Messages)
	if len(parts) == 0 {
		return LLMResponse{}, errors.New("assistant: gemini requires at least one message")
	}

	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if system := strings.TrimSpace(strings.Join(req.System, "\n\n")); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("assistant: gemini completion failed: %w", err)
	}
	return fromGenerateResponse(resp)
}

// promptParts keeps non-empty user content in order.
func promptParts(messages []ChatMessage) []genai.Part {
	var parts []genai.Part
	for _, m := range messages {
		if m.Role != ChatRoleUser && m.Role != "" {
			continue
		}
		if text := strings.TrimSpace(m.Content); text != "" {
			parts = append(parts, genai.Text(text))
		}
	}
	return parts
}

func fromGenerateResponse(resp *genai.GenerateContentResponse) (LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return LLMResponse{}, errNoContent
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return LLMResponse{}, errNoContent
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	out := LLMResponse{Text: strings.TrimSpace(b.String()), StopReason: cand.FinishReason.String()}
	if out.Text == "" {
		return LLMResponse{}, errNoContent
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = TokenUsage{
			InputTokens:  u.PromptTokenCount,
			OutputTokens: u.CandidatesTokenCount,
			TotalTokens:  u.TotalTokenCount,
		}
	}
	return out, nil
}

func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
