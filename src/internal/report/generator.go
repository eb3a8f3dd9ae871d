package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/VectorBits/econaudit/src/internal/report/renderers"
)

const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

type Generator interface {
	Generate(report *Report) (string, error)
	Extension() string
}

// NewGenerator selects a generator by format name.
func NewGenerator(format string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "markdown", "":
		return NewMarkdownGenerator(), nil
	case FormatJSON:
		return NewJSONGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s (use md or json)", format)
	}
}

type JSONGenerator struct{}

func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

func (g *JSONGenerator) Extension() string { return FormatJSON }

func (g *JSONGenerator) Generate(report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data) + "\n", nil
}

type MarkdownGenerator struct {
	renderer *renderers.MarkdownRenderer
}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{renderer: renderers.NewMarkdownRenderer()}
}

func (g *MarkdownGenerator) Extension() string { return FormatMarkdown }

func (g *MarkdownGenerator) Generate(report *Report) (string, error) {
	var b strings.Builder

	b.WriteString("# Economic Audit Report\n\n")
	if report.RunID != "" {
		fmt.Fprintf(&b, "**Run ID**: `%s`\n", report.RunID)
	}
	fmt.Fprintf(&b, "**Chain**: %s\n", report.Chain)
	fmt.Fprintf(&b, "**AI Provider**: %s\n", report.AIProvider)
	fmt.Fprintf(&b, "**Audit Time**: %s\n\n", report.AuditTime.Format("2006-01-02 15:04:05"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total Contracts**: %d\n", report.TotalContracts)
	fmt.Fprintf(&b, "- **Vulnerable Contracts**: %d\n", report.VulnerableContracts)
	fmt.Fprintf(&b, "- **Economically Exploitable**: %d\n", report.ExploitableContracts)
	if report.FailedContracts > 0 {
		fmt.Fprintf(&b, "- **Failed Contracts**: %d\n", report.FailedContracts)
	}
	b.WriteString("\n")

	if len(report.SeverityDistribution) > 0 {
		b.WriteString("### Severity Distribution\n\n")
		for _, level := range finding.Levels {
			if n := report.SeverityDistribution[level]; n > 0 {
				fmt.Fprintf(&b, "- %s **%s**: %d\n", renderers.SeverityIcon(level), renderers.Title(level), n)
			}
		}
		b.WriteString("\n")
	}

	for i := range report.Results {
		g.writeContract(&b, &report.Results[i])
		if i < len(report.Results)-1 {
			b.WriteString("---\n\n")
		}
	}
	return b.String(), nil
}

func (g *MarkdownGenerator) writeContract(b *strings.Builder, c *ContractResult) {
	fmt.Fprintf(b, "## 📄 Contract: %s\n\n", c.Contract)
	fmt.Fprintf(b, "**Path**: `%s`\n", c.Path)
	if c.Address != "" {
		fmt.Fprintf(b, "**Address**: `%s`\n", c.Address)
	}
	fmt.Fprintf(b, "**Status**: %s\n", c.Status)
	if c.Error != "" {
		fmt.Fprintf(b, "**Error**: %s\n\n", c.Error)
		return
	}
	fmt.Fprintf(b, "**Risk Score**: %.1f/100\n", c.Summary.RiskScore)
	fmt.Fprintf(b, "**Analyzers Run**: %s\n", strings.Join(c.Summary.AnalyzersRun, ", "))
	fmt.Fprintf(b, "**Duration**: %s\n\n", c.Duration.Round(time.Millisecond))

	if len(c.Analyzers) > 0 {
		b.WriteString("### Analyzer Results\n\n")
		rows := make([][]string, 0, len(c.Analyzers))
		for _, a := range c.Analyzers {
			status := "✅ ok"
			if a.Failed() {
				status = "❌ " + a.Error
			}
			rows = append(rows, []string{a.Name, fmt.Sprint(a.Findings), a.Duration.Round(time.Millisecond).String(), status})
		}
		b.WriteString(g.renderer.RenderTable([]string{"Analyzer", "Findings", "Duration", "Status"}, rows))
		b.WriteString("\n")
	}

	if len(c.Findings) == 0 {
		b.WriteString("### ✅ No vulnerabilities found\n\n")
	} else {
		fmt.Fprintf(b, "### 🛡️ Findings (%d)\n\n", c.Summary.TotalVulnerabilities)
		bySeverity := c.FindingsBySeverity()
		for _, level := range finding.Levels {
			group := bySeverity[level]
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(b, "#### %s %s (%d)\n\n", renderers.SeverityIcon(level), renderers.Title(level), len(group))
			for j, f := range group {
				b.WriteString(g.renderer.RenderFinding(j+1, f))
			}
			b.WriteString("\n")
		}
	}

	if c.Economic != nil {
		g.writeEconomic(b, c.Economic)
	}
	if c.Arbitrage != nil && c.Arbitrage.TotalOpportunities > 0 {
		g.writeArbitrage(b, c.Arbitrage)
	}
	if c.Sandbox != nil {
		b.WriteString("### 🍴 Sandbox Probe\n\n")
		if c.Sandbox.Fork != nil {
			fmt.Fprintf(b, "- **Fork**: %s (pid %d)\n", c.Sandbox.Fork.URL, c.Sandbox.Fork.PID)
		}
		fmt.Fprintf(b, "- **Account**: `%s`\n", c.Sandbox.Account)
		fmt.Fprintf(b, "- **Balance**: %s %s\n", economic.WeiToNative(c.Sandbox.BalanceWei).StringFixed(6), c.Sandbox.Profit.NativeToken)
		fmt.Fprintf(b, "- **Value at Risk**: $%.2f\n", c.Sandbox.ValueAtRiskUSD)
		if c.Sandbox.Snapshot {
			b.WriteString("- **Mode**: balance snapshot, no action executed; profit not measured\n\n")
		} else {
			fmt.Fprintf(b, "- **Verdict**: %s\n\n", c.Sandbox.Threshold.Summary())
		}
	}
}

func (g *MarkdownGenerator) writeEconomic(b *strings.Builder, e *economic.EconomicAnalysis) {
	b.WriteString("### 💰 Economic Analysis\n\n")
	fmt.Fprintf(b, "- **Contract Prices Found**: %d\n", e.ContractPricesFound)
	fmt.Fprintf(b, "- **Market Prices Available**: %d\n", e.MarketPricesAvailable)
	fmt.Fprintf(b, "- **Exploitable Discrepancies**: %d\n", e.ExploitableCount)
	fmt.Fprintf(b, "- **Total Profit Potential**: $%.2f\n\n", e.TotalProfitPotentialUSD)

	if len(e.Discrepancies) > 0 {
		rows := make([][]string, 0, len(e.Discrepancies))
		for _, d := range e.Discrepancies {
			rows = append(rows, []string{
				d.PatternType,
				fmt.Sprint(d.Line),
				fmt.Sprintf("$%.4f", d.ContractPriceUSD),
				fmt.Sprintf("$%.4f", d.MarketPriceUSD),
				fmt.Sprintf("%.2f%%", d.DiscrepancyPct),
				renderers.SeverityIcon(d.Severity) + " " + renderers.Title(d.Severity),
			})
		}
		b.WriteString(g.renderer.RenderTable([]string{"Pattern", "Line", "Contract", "Market", "Deviation", "Severity"}, rows))
		b.WriteString("\n")
	}
	if len(e.Patterns) > 0 {
		b.WriteString("**Risky Patterns**:\n\n")
		for _, p := range e.Patterns {
			fmt.Fprintf(b, "- %s `%s`: %s\n", renderers.SeverityIcon(p.Severity), p.Type, p.Description)
		}
		b.WriteString("\n")
	}
}

func (g *MarkdownGenerator) writeArbitrage(b *strings.Builder, a *economic.ArbitrageAnalysis) {
	b.WriteString("### ⚡ Arbitrage Opportunities\n\n")
	fmt.Fprintf(b, "- **Opportunities**: %d\n", a.TotalOpportunities)
	fmt.Fprintf(b, "- **Total Profit Potential**: $%.2f\n", a.TotalProfitPotentialUSD)
	fmt.Fprintf(b, "- **Profitable**: %t\n\n", a.IsProfitable)
	for i, o := range a.Opportunities {
		b.WriteString(g.renderer.RenderOpportunity(i+1, o))
		b.WriteString("\n")
	}
}
