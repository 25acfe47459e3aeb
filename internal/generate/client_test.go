package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"quizdeck/internal/domain"
)

func TestFromTextParsesAndValidates(t *testing.T) {
	server := chatServer(t, "Here you go:\n[{\"text\":\"What is 2+2?\",\"answers\":[\"3\",\"4\"],\"correctAnswer\":\"4\"}]")
	defer server.Close()

	client := NewClient(server.URL, "test-key", "")
	questions, err := client.FromText(context.Background(), "basic arithmetic")
	if err != nil {
		t.Fatalf("from text: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}
	q := questions[0]
	if q.Text != "What is 2+2?" || len(q.Answers) != 2 || q.CorrectAnswer != "4" {
		t.Fatalf("question lost in round trip: %+v", q)
	}
	if q.Answers[0] != "3" || q.Answers[1] != "4" {
		t.Fatalf("answer order not preserved: %v", q.Answers)
	}
}

func TestFromTextRejectsInvalidQuestions(t *testing.T) {
	server := chatServer(t, `[{"text":"Broken","answers":["only one"],"correctAnswer":"only one"}]`)
	defer server.Close()

	client := NewClient(server.URL, "", "")
	_, err := client.FromText(context.Background(), "anything")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Index != 0 {
		t.Fatalf("expected failing index 0, got %d", verr.Index)
	}
}

func TestFromTextRejectsProseOnlyReply(t *testing.T) {
	server := chatServer(t, "I could not produce questions for that material.")
	defer server.Close()

	client := NewClient(server.URL, "", "")
	_, err := client.FromText(context.Background(), "anything")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFromTextRequiresText(t *testing.T) {
	client := NewClient("http://unused", "", "")
	if _, err := client.FromText(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestFromTextSurfacesUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	if _, err := client.FromText(context.Background(), "anything"); err == nil {
		t.Fatalf("expected upstream error")
	}
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 {
			t.Errorf("expected one message, got %d", len(req.Messages))
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}
