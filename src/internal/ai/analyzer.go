package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/logger"
	"github.com/VectorBits/econaudit/src/strategy/prompts"
)

const SourceName = "ai"

// Analyzer runs the model over a contract file and reports its
// vulnerabilities as findings. It satisfies the static analyzer interface so
// the orchestrator treats it like any other tool.
type Analyzer struct {
	manager  *Manager
	template string
}

func NewAnalyzer(manager *Manager) (*Analyzer, error) {
	tmpl, err := prompts.LoadTemplate(prompts.TemplateVulnerability)
	if err != nil {
		return nil, err
	}
	return &Analyzer{manager: manager, template: tmpl}, nil
}

func (a *Analyzer) Name() string {
	return SourceName
}

func (a *Analyzer) Analyze(ctx context.Context, contractPath string) ([]finding.Finding, error) {
	code, err := os.ReadFile(contractPath)
	if err != nil {
		return nil, fmt.Errorf("read contract: %w", err)
	}
	return a.AnalyzeSource(ctx, filepath.Base(contractPath), string(code), nil)
}

// AnalyzeSource includes toolFindings (one line each) as prompt context.
func (a *Analyzer) AnalyzeSource(ctx context.Context, name, code string, toolFindings []string) ([]finding.Finding, error) {
	prompt, err := prompts.BuildPrompt(a.template, prompts.NewPromptVariables(name, code, toolFindings))
	if err != nil {
		return nil, err
	}

	result, err := a.manager.AnalyzeContract(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if result.ParseError != "" {
		logger.Warn("AI response for %s was not valid JSON: %s", name, result.ParseError)
	}
	logger.Debug("AI risk score for %s: %.0f (%s)", name, result.RiskScore, result.AnalysisDuration)
	return result.Findings(SourceName), nil
}

func (a *Analyzer) Close() error {
	return a.manager.Close()
}
