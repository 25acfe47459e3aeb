package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quizdeck/internal/domain"
)

const (
	defaultModel   = "deepseek-chat"
	requestTimeout = 60 * time.Second
)

// Client turns free text into validated quiz questions via an
// OpenAI-compatible chat completion endpoint. The model is an opaque
// collaborator: whatever comes back is validated against the Question
// invariants before the engine sees it.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	httpc    *http.Client
}

func NewClient(endpoint, apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpc:    &http.Client{Timeout: requestTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// FromText asks the model for multiple-choice questions covering the text
// and returns them once every question passes validation.
func (c *Client) FromText(ctx context.Context, text string) ([]domain.Question, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Validationf("text", "source text must not be empty")
	}

	prompt := fmt.Sprintf(`Create multiple-choice questions covering the material below.
Respond with a JSON array only, no prose. Each element must be an object with
"text" (the question), "answers" (2 or more distinct option strings), and
"correctAnswer" (exactly one of the answers).

Material:
%s`, text)

	reqBody, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation request failed with status %d: %s", resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no choices in generation response")
	}

	questions, err := extractQuestions(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePool(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// extractQuestions pulls the JSON array out of the model's reply, tolerating
// surrounding prose or code fences.
func extractQuestions(content string) ([]domain.Question, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, domain.Validationf("questions", "model reply contains no JSON array")
	}
	var questions []domain.Question
	if err := json.Unmarshal([]byte(content[start:end+1]), &questions); err != nil {
		return nil, domain.Validationf("questions", "malformed question JSON: %v", err)
	}
	if len(questions) == 0 {
		return nil, domain.Validationf("questions", "model produced no questions")
	}
	return questions, nil
}
