package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAIClientRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[1].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(ChatCompletionResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "OK"}}}})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	c.baseDelay = time.Millisecond

	got, err := c.Analyze(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got != "OK" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestOpenAIClientJSONFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"response_format is not supported"}}`))
			return
		}
		json.NewEncoder(w).Encode(ChatCompletionResponse{Choices: []Choice{{Message: Message{Content: "{}"}}}})
	}))
	defer srv.Close()

	c, _ := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	got, err := c.AnalyzeJSON(context.Background(), "p")
	if err != nil || got != "{}" {
		t.Errorf("AnalyzeJSON = %q, %v", got, err)
	}
}

func TestOpenAIClientFatalStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := c.Analyze(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("401 retried %d times", calls)
	}
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestLocalLLMClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Format != "json" || req.Options.NumCtx != 8192 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Model: req.Model, Response: `{"vulnerabilities":[]}`, Done: true})
	}))
	defer srv.Close()

	c, err := NewLocalLLMClient(LocalLLMConfig{BaseURL: srv.URL, Model: "qwen"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.AnalyzeJSON(context.Background(), "p")
	if err != nil || got != `{"vulnerabilities":[]}` {
		t.Errorf("AnalyzeJSON = %q, %v", got, err)
	}
	if c.GetName() != "Local LLM (qwen)" {
		t.Errorf("name = %q", c.GetName())
	}
}

func TestLocalLLMClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'x' not found"}`))
	}))
	defer srv.Close()

	c, _ := NewLocalLLMClient(LocalLLMConfig{BaseURL: srv.URL})
	if _, err := c.Analyze(context.Background(), "p"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestStubClient(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		types []string
	}{
		{"reentrancy and no access control", "function w() { msg.sender.call{value: 1}(\"\"); }", []string{"Potential Reentrancy Vulnerability", "Missing Access Control"}},
		{"guarded", "function w() onlyOwner { x = 1; }", nil},
		{"require sender", "require(msg.sender == owner); addr.call(data);", []string{"Potential Reentrancy Vulnerability"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewStubClient().Analyze(context.Background(), "Analyze:\n```solidity\n"+tt.code+"\n```\n")
			if err != nil {
				t.Fatal(err)
			}
			var resp struct {
				Vulnerabilities []struct {
					Type string `json:"type"`
				} `json:"vulnerabilities"`
			}
			if err := json.Unmarshal([]byte(out), &resp); err != nil {
				t.Fatalf("stub output not JSON: %v", err)
			}
			if len(resp.Vulnerabilities) != len(tt.types) {
				t.Fatalf("got %d vulns, want %d: %s", len(resp.Vulnerabilities), len(tt.types), out)
			}
			for i, typ := range tt.types {
				if resp.Vulnerabilities[i].Type != typ {
					t.Errorf("vuln %d = %q, want %q", i, resp.Vulnerabilities[i].Type, typ)
				}
			}
		})
	}
}
