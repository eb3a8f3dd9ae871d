package report

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/risk"
	"github.com/VectorBits/econaudit/src/internal/sandbox"
)

func sampleReport() *Report {
	findings := []finding.Finding{
		{Type: "reentrancy-eth", Severity: finding.SeverityCritical, Description: "external call before state write", Location: "Vault.sol:line 42", Source: "slither"},
		{Type: "price_discrepancy", Severity: finding.SeverityHigh, Description: "hardcoded_price deviates", Location: "line 7", Source: "economic"},
	}
	c := NewContractResult("Vault", "contracts/Vault.sol")
	c.Duration = 1500 * time.Millisecond
	c.Findings = findings
	c.Summary = risk.Aggregate(findings, []string{"slither", "economic", "mythril"})
	c.Analyzers = []AnalyzerResult{
		{Name: "slither", Findings: 1, Duration: time.Second},
		{Name: "mythril", Error: "myth: executable file not found"},
	}
	c.Economic = &economic.EconomicAnalysis{
		HasEconomicVulnerabilities: true,
		ContractPricesFound:        1,
		MarketPricesAvailable:      2,
		Discrepancies: []economic.Discrepancy{{
			ContractPriceUSD: 1, MarketPriceUSD: 2, DiscrepancyPct: 100,
			Severity: finding.SeverityHigh, PatternType: "hardcoded_price", Line: 7, IsExploitable: true,
		}},
	}
	arb := economic.NewArbitrageDetector(100).Analyze(c.Economic.Discrepancies, nil)
	c.Arbitrage = &arb

	failed := NewContractResult("Broken", "contracts/Broken.sol")
	failed.Status = StatusFailed
	failed.Error = "read contract: no such file"

	r := NewReport("0f8fad5b-d9cb-469f-a165-70867728950e", "bsc", "stub")
	r.AddResult(c)
	r.AddResult(failed)
	return r
}

func TestAddResultCounts(t *testing.T) {
	r := sampleReport()
	if r.TotalContracts != 2 || r.VulnerableContracts != 1 || r.FailedContracts != 1 {
		t.Errorf("counts = %d/%d/%d", r.TotalContracts, r.VulnerableContracts, r.FailedContracts)
	}
	if r.ExploitableContracts != 1 {
		t.Errorf("exploitable = %d, want 1", r.ExploitableContracts)
	}
	if r.SeverityDistribution[finding.SeverityCritical] != 1 || r.SeverityDistribution[finding.SeverityHigh] != 1 {
		t.Errorf("distribution = %v", r.SeverityDistribution)
	}
	if _, ok := r.SeverityDistribution[finding.SeverityLow]; ok {
		t.Error("zero counts should not be recorded")
	}
}

func TestMarkdownGenerator(t *testing.T) {
	out, err := NewMarkdownGenerator().Generate(sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"# Economic Audit Report",
		"**Chain**: bsc",
		"- **Vulnerable Contracts**: 1",
		"- **Economically Exploitable**: 1",
		"## 📄 Contract: Vault",
		"**Risk Score**: 35.0/100",
		"**Analyzers Run**: economic, mythril, slither",
		"| mythril | 0 |",
		"❌ myth: executable file not found",
		"#### 🔴 Critical (1)",
		"1. 🔴 **reentrancy-eth** _(slither)_",
		"### 💰 Economic Analysis",
		"| hardcoded_price | 7 | $1.0000 | $2.0000 | 100.00% | 🟠 High |",
		"### ⚡ Arbitrage Opportunities",
		"simple arbitrage",
		"flash loan arbitrage",
		"**Error**: read contract: no such file",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Index(out, "Critical (1)") > strings.Index(out, "High (1)") {
		t.Error("critical findings should be listed before high")
	}
}

func TestContractResultExploitable(t *testing.T) {
	tests := []struct {
		name string
		econ *economic.EconomicAnalysis
		arb  *economic.ArbitrageAnalysis
		want bool
	}{
		{name: "no economic stage", want: false},
		{name: "findings without exploitable gap", econ: &economic.EconomicAnalysis{HasEconomicVulnerabilities: true}, arb: &economic.ArbitrageAnalysis{}, want: false},
		{name: "exploitable discrepancy", econ: &economic.EconomicAnalysis{ExploitableCount: 1}, want: true},
		{name: "profitable arbitrage", econ: &economic.EconomicAnalysis{}, arb: &economic.ArbitrageAnalysis{IsProfitable: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContractResult("C", "C.sol")
			c.Findings = []finding.Finding{{Type: "reentrancy", Severity: finding.SeverityHigh}}
			c.Economic, c.Arbitrage = tt.econ, tt.arb
			if got := c.Exploitable(); got != tt.want {
				t.Errorf("Exploitable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarkdownSandboxSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		snapshot bool
		want     string
		notWant  string
	}{
		{name: "balance snapshot", snapshot: true, want: "balance snapshot, no action executed", notWant: "**Verdict**"},
		{name: "measured action", snapshot: false, want: "**Verdict**", notWant: "balance snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContractResult("Vault", "Vault.sol")
			c.Sandbox = &sandbox.ProbeResult{
				Snapshot:       tt.snapshot,
				Account:        "0x1000000000000000000000000000000000000001",
				BalanceWei:     big.NewInt(0),
				ValueAtRiskUSD: 0,
			}
			r := NewReport("run", "ethereum", "stub")
			r.AddResult(c)
			out, err := NewMarkdownGenerator().Generate(r)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.want) || strings.Contains(out, tt.notWant) {
				t.Errorf("sandbox section wrong:\n%s", out)
			}
		})
	}
}

func TestJSONGenerator(t *testing.T) {
	out, err := NewJSONGenerator().Generate(sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		RunID   string `json:"run_id"`
		Results []struct {
			Contract string `json:"contract"`
			Summary  struct {
				RiskScore float64 `json:"risk_score"`
			} `json:"summary"`
			Analyzers []struct {
				Name  string `json:"name"`
				Error string `json:"error"`
			} `json:"analyzers"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.RunID == "" || len(decoded.Results) != 2 || decoded.Results[0].Summary.RiskScore != 35 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Results[0].Analyzers[1].Error == "" {
		t.Error("analyzer error not serialized")
	}
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		format  string
		ext     string
		wantErr bool
	}{
		{"md", "md", false},
		{"markdown", "md", false},
		{"", "md", false},
		{"JSON", "json", false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		g, err := NewGenerator(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewGenerator(%q) err = %v", tt.format, err)
			continue
		}
		if err == nil && g.Extension() != tt.ext {
			t.Errorf("NewGenerator(%q).Extension() = %s", tt.format, g.Extension())
		}
	}
}

func TestReporterSavesAtomically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	rep := NewReporter(NewJSONGenerator(), NewFileStorage(dir))

	path, err := rep.GenerateAndSave(sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".json" || !strings.Contains(filepath.Base(path), "audit_report_bsc_0f8fad5b_") {
		t.Errorf("path = %s", path)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the final report, found %d entries", len(entries))
	}
	data, _ := os.ReadFile(path)
	if !json.Valid(data) {
		t.Error("saved report is not valid JSON")
	}
}

func TestSanitizeFilenameComponent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Vault", "Vault"},
		{"my contract/v2", "my_contract_v2"},
		{"  ", "unknown"},
		{"..", "unknown"},
	}
	for _, tt := range tests {
		if got := sanitizeFilenameComponent(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
