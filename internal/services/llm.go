package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// LLMService produces the final natural-language answer from the
// retrieved snippets and the user's query.
type LLMService struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewLLMService(apiKey string) (*LLMService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.3)

	return &LLMService{client: client, model: model}, nil
}

func (s *LLMService) Close() {
	s.client.Close()
}

// Answer grounds the reply in the retrieved results. previous holds the
// user's earlier queries, oldest first.
func (s *LLMService) Answer(ctx context.Context, results json.RawMessage, query string, previous []string) (string, error) {
	prompt := fmt.Sprintf(
		"Given the following results %s and the following query %s, with the previous queries sent by the user being %s, "+
			"return the best informed response to the current query with no formatting. "+
			"Stick to the data as much as possible but interpret where necessary.",
		string(results), query, strings.Join(previous, ","))

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
			return "", &RateLimitError{Message: "The assistant is handling too many requests right now, try again shortly"}
		}
		return "", fmt.Errorf("completion error: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("completion returned no text")
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return strings.TrimSpace(text.String())
}
