package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
)

func TestOpenAIClassifier_RequestsJSONObject(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant",
"content":"{\"response\":\"I'm here.\",\"crisis_level\":\"low\",\"sentiment\":\"negative\"}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClassifier("sk-test", srv.URL, "gpt-4o-mini", 1000)
	if err != nil {
		t.Fatalf("NewOpenAIClassifier: %v", err)
	}
	c.counter = nil // byte heuristic; keeps the test offline

	out, err := c.Classify(context.Background(), adapter.ClassifyRequest{Message: "rough day"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.ResponseFormat.Type != "json_object" {
		t.Fatalf("response_format.type = %q", got.ResponseFormat.Type)
	}
	if got.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", got.Model)
	}
	if out.CrisisLevel != model.CrisisLow || out.Response != "I'm here." {
		t.Fatalf("out = %+v", out)
	}
}
