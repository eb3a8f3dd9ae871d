package ai

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

type scriptedClient struct {
	responses []string
	prompts   []string
}

func (s *scriptedClient) Analyze(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func (s *scriptedClient) GetName() string { return "scripted" }
func (s *scriptedClient) Close() error    { return nil }

func TestManagerReformatRetry(t *testing.T) {
	fake := &scriptedClient{responses: []string{
		"The contract has a reentrancy bug.",
		`{"vulnerabilities":[{"type":"reentrancy","severity":"critical"}],"risk_score":30}`,
	}}
	m, err := NewManager(ManagerConfig{Client: fake, RequestsPerMin: 6000})
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.AnalyzeContract(context.Background(), "analyze")
	if err != nil {
		t.Fatalf("AnalyzeContract: %v", err)
	}
	if got.ParseError != "" || len(got.Vulnerabilities) != 1 || got.RiskScore != 30 {
		t.Errorf("result = %+v", got)
	}
	if len(fake.prompts) != 2 {
		t.Errorf("expected reformat retry, got %d prompts", len(fake.prompts))
	}
}

func TestAnalyzerWithStub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Vault.sol")
	src := "contract Vault { function withdraw() public { msg.sender.call{value: 1}(\"\"); } }"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(ManagerConfig{AIClientConfig: AIClientConfig{Provider: "stub"}, RequestsPerMin: 6000})
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAnalyzer(m)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	got, err := a.Analyze(context.Background(), path)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []finding.Severity{finding.SeverityHigh, finding.SeverityMedium}
	if len(got) != len(want) {
		t.Fatalf("got %d findings: %+v", len(got), got)
	}
	for i, sev := range want {
		if got[i].Severity != sev || got[i].Source != "ai" {
			t.Errorf("finding %d = %+v", i, got[i])
		}
	}

	if _, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing.sol")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewAIClient(t *testing.T) {
	if _, err := NewAIClient(AIClientConfig{Provider: "gemini"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
	if _, err := NewAIClient(AIClientConfig{Provider: "openai"}); err == nil {
		t.Error("expected error without API key")
	}
	c, err := NewAIClient(AIClientConfig{Provider: "ollama"})
	if err != nil || c.GetName() == "" {
		t.Errorf("ollama client = %v, %v", c, err)
	}
	if err := ValidateProvider("STUB"); err != nil {
		t.Error(err)
	}
}

func TestParseAPIKeys(t *testing.T) {
	got := parseAPIKeys(" a, b;a\nc ")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("keys = %v", got)
	}
}
