package application

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mindspace/internal/config"
	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
)

const memoryConfig = `
storage:
  backend: memory
security:
  active_key_version: 1
  keys:
    1: "0123456789abcdef0123456789abcdef"
  jwt_secret: "test-jwt-secret"
  bcrypt_cost: 4
  operator_key: "op"
classifier:
  provider: keyword
`

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestBuild_MemoryBackendServesRequests(t *testing.T) {
	cfg, err := config.Parse([]byte(memoryConfig), true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	app, err := Build(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	call := func(method, path, token string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		app.Handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := call(http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec := call(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"secret": "Sunflower42"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", rec.Code, rec.Body.String())
	}
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&auth)

	rec = call(http.MethodPost, "/api/v1/sessions", auth.Token, map[string]string{"title": "hi"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d %s", rec.Code, rec.Body.String())
	}
	var sess struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&sess)

	rec = call(http.MethodPost, "/api/v1/sessions/"+sess.ID+"/messages", auth.Token, map[string]string{"content": "I feel a bit lonely"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send = %d %s", rec.Code, rec.Body.String())
	}

	report, err := app.Sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if report.Identities != 0 || report.Sessions != 0 {
		t.Fatalf("nothing should be expired yet: %+v", report)
	}
}

func TestNewClassifier(t *testing.T) {
	cases := []struct {
		name     string
		cfg      config.ClassifierConfig
		wantName string
		wantErr  bool
	}{
		{"keyword", config.ClassifierConfig{Provider: "keyword"}, "keyword", false},
		{"openai falls back to keyword", config.ClassifierConfig{Provider: "openai", OpenAIKey: "sk-test", Model: "gpt-4o-mini"}, "openai>keyword", false},
		{"unknown", config.ClassifierConfig{Provider: "oracle"}, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClassifier(context.Background(), tc.cfg, newLogger())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClassifier: %v", err)
			}
			if c.Name() != tc.wantName {
				t.Fatalf("Name = %q, want %q", c.Name(), tc.wantName)
			}
		})
	}
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Backend: "sqlite"}}
	if _, err := OpenStores(context.Background(), cfg, newLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewClassifier_KeywordFallbackWhenProviderHangs(t *testing.T) {
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body) // net/http only watches for client disconnect once the body is consumed
		<-r.Context().Done()
	}))
	defer hung.Close()

	c, err := NewClassifier(context.Background(), config.ClassifierConfig{
		Provider:        "openai",
		OpenAIKey:       "sk-test",
		OpenAIBaseURL:   hung.URL,
		Model:           "gpt-4o-mini",
		Timeout:         50 * time.Millisecond,
		ConcurrentLimit: 2,
	}, newLogger())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	out, err := c.Classify(context.Background(), adapter.ClassifyRequest{Message: "I want to kill myself"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.CrisisLevel != model.CrisisImmediate {
		t.Fatalf("CrisisLevel = %q, want immediate", out.CrisisLevel)
	}
}
