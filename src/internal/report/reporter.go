package report

import (
	"fmt"
	"time"

	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/risk"
	"github.com/VectorBits/econaudit/src/internal/sandbox"
)

const (
	StatusCompleted = "✅ Audit Completed"
	StatusFailed    = "❌ Audit Failed"
)

// AnalyzerResult records one analyzer's run; Error is set when it failed and
// its findings were dropped.
type AnalyzerResult struct {
	Name     string        `json:"name"`
	Findings int           `json:"findings"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

func (a AnalyzerResult) Failed() bool { return a.Error != "" }

// ContractResult is everything known about one audited contract.
type ContractResult struct {
	Contract  string                      `json:"contract"`
	Path      string                      `json:"path"`
	Address   string                      `json:"address,omitempty"`
	AuditTime time.Time                   `json:"audit_time"`
	Duration  time.Duration               `json:"duration_ns"`
	Status    string                      `json:"status"`
	Error     string                      `json:"error,omitempty"`
	Analyzers []AnalyzerResult            `json:"analyzers"`
	Findings  []finding.Finding           `json:"findings"`
	Summary   risk.AuditSummary           `json:"summary"`
	Economic  *economic.EconomicAnalysis  `json:"economic_analysis,omitempty"`
	Arbitrage *economic.ArbitrageAnalysis `json:"arbitrage_analysis,omitempty"`
	Sandbox   *sandbox.ProbeResult        `json:"sandbox,omitempty"`
}

func NewContractResult(contract, path string) ContractResult {
	return ContractResult{
		Contract:  contract,
		Path:      path,
		AuditTime: time.Now(),
		Status:    StatusCompleted,
	}
}

// Exploitable reports whether the economic stage found an exploitable
// price discrepancy or a profitable arbitrage.
func (c *ContractResult) Exploitable() bool {
	if c.Economic != nil && c.Economic.ExploitableCount > 0 {
		return true
	}
	return c.Arbitrage != nil && c.Arbitrage.IsProfitable
}

// FindingsBySeverity groups findings by level, most severe first.
func (c *ContractResult) FindingsBySeverity() map[finding.Severity][]finding.Finding {
	out := make(map[finding.Severity][]finding.Finding)
	for _, f := range c.Findings {
		level := finding.ParseSeverity(string(f.Severity))
		out[level] = append(out[level], f)
	}
	return out
}

type Report struct {
	RunID                string                   `json:"run_id"`
	Chain                string                   `json:"chain"`
	AIProvider           string                   `json:"ai_provider"`
	AuditTime            time.Time                `json:"audit_time"`
	TotalContracts       int                      `json:"total_contracts"`
	VulnerableContracts  int                      `json:"vulnerable_contracts"`
	ExploitableContracts int                      `json:"exploitable_contracts"`
	FailedContracts      int                      `json:"failed_contracts"`
	SeverityDistribution map[finding.Severity]int `json:"severity_distribution"`
	Results              []ContractResult         `json:"results"`
}

func NewReport(runID, chain, aiProvider string) *Report {
	return &Report{
		RunID:                runID,
		Chain:                chain,
		AIProvider:           aiProvider,
		AuditTime:            time.Now(),
		SeverityDistribution: make(map[finding.Severity]int),
		Results:              make([]ContractResult, 0),
	}
}

func (r *Report) AddResult(result ContractResult) {
	r.Results = append(r.Results, result)
	r.TotalContracts++

	if result.Error != "" {
		r.FailedContracts++
		return
	}
	if result.Summary.TotalVulnerabilities > 0 {
		r.VulnerableContracts++
	}
	if result.Exploitable() {
		r.ExploitableContracts++
	}
	for level, n := range result.Summary.Severity {
		if n > 0 {
			r.SeverityDistribution[level] += n
		}
	}
}

// Reporter renders a report with its generator and persists it.
type Reporter struct {
	generator Generator
	storage   Storage
}

func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

func (r *Reporter) GenerateAndSave(report *Report) (string, error) {
	content, err := r.generator.Generate(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	path, err := r.storage.Save(report, content, r.generator.Extension())
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}
