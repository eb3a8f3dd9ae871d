package static_analyzer

import (
	"context"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

// Analyzer runs one external tool over a contract file and reports findings
// with normalized severities.
type Analyzer interface {
	Name() string

	Analyze(ctx context.Context, contractPath string) ([]finding.Finding, error)

	Close() error
}

type NoOpAnalyzer struct{}

func (n *NoOpAnalyzer) Name() string {
	return "noop"
}

func (n *NoOpAnalyzer) Analyze(ctx context.Context, contractPath string) ([]finding.Finding, error) {
	return nil, nil
}

func (n *NoOpAnalyzer) Close() error {
	return nil
}

func NewNoOpAnalyzer() Analyzer {
	return &NoOpAnalyzer{}
}
