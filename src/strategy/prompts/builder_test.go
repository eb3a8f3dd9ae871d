package prompts

import (
	"strings"
	"testing"
)

func TestBuildVulnerabilityPrompt(t *testing.T) {
	tmpl, err := LoadTemplate(TemplateVulnerability)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}

	vars := NewPromptVariables("Vault.sol", "contract Vault {}", []string{"reentrancy-eth: " + strings.Repeat("x", 200)})
	got, err := BuildPrompt(tmpl, vars)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(got, "contract Vault {}") || !strings.Contains(got, "CONTRACT: Vault.sol") {
		t.Errorf("prompt missing contract:\n%s", got)
	}
	if !strings.Contains(got, "- reentrancy-eth: ") || strings.Contains(got, strings.Repeat("x", 100)) {
		t.Errorf("tool finding not truncated:\n%s", got)
	}
}

func TestBuildPromptWithoutFindings(t *testing.T) {
	tmpl, _ := LoadTemplate(TemplateVulnerability)
	got, err := BuildPrompt(tmpl, NewPromptVariables("A.sol", strings.Repeat("a", 5000), nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "No findings from static analysis tools") {
		t.Error("missing empty findings line")
	}
	if strings.Contains(got, strings.Repeat("a", 4001)) {
		t.Error("contract code not truncated")
	}
}

func TestLoadTemplateUnknown(t *testing.T) {
	if _, err := LoadTemplate("exploit"); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestBuildPromptBadTemplate(t *testing.T) {
	if _, err := BuildPrompt("{{.Missing", nil); err == nil {
		t.Error("expected parse error")
	}
}
