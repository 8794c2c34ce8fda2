package services_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentscan/andy-web/internal/services"
)

func TestFirstLine(t *testing.T) {
	got, err := services.FirstLine{}.GenerateTitle(context.Background(), "How does the trader agent work?\nthanks")
	if err != nil {
		t.Fatal(err)
	}
	if got != "How does the trader agent work?" {
		t.Errorf("GenerateTitle() = %q", got)
	}
}

func TestOllamaGenerateTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "llama3" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":"\"Staking OLAS\""},"done":true}`+"\n")
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama3", services.DefaultTitlePrompt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := o.GenerateTitle(context.Background(), "How do I stake OLAS?")
	if err != nil {
		t.Fatalf("GenerateTitle() error = %v", err)
	}
	if got != "Staking OLAS" {
		t.Errorf("GenerateTitle() = %q, want Staking OLAS", got)
	}
}

func TestOpenAIGenerateTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Title: Trader agents "}}]}`)
	}))
	defer srv.Close()

	o := services.NewOpenAI("key", srv.URL+"/v1", "gpt-4o-mini", services.DefaultTitlePrompt, testLogger())
	got, err := o.GenerateTitle(context.Background(), "How does the trader agent work?")
	if err != nil {
		t.Fatalf("GenerateTitle() error = %v", err)
	}
	if got != "Trader agents" {
		t.Errorf("GenerateTitle() = %q, want Trader agents", got)
	}
}
