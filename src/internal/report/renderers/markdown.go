package renderers

import (
	"fmt"
	"strings"

	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/finding"
)

type MarkdownRenderer struct{}

func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

func (r *MarkdownRenderer) RenderFinding(index int, f finding.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s **%s**", index, SeverityIcon(f.Severity), f.Type)
	if f.Source != "" {
		fmt.Fprintf(&b, " _(%s)_", f.Source)
	}
	b.WriteString("\n")
	if f.Location != "" {
		fmt.Fprintf(&b, "   - **Location**: `%s`\n", f.Location)
	}
	if desc := strings.TrimSpace(f.Description); desc != "" {
		fmt.Fprintf(&b, "   - **Description**: %s\n", strings.ReplaceAll(desc, "\n", "\n     "))
	}
	return b.String()
}

func (r *MarkdownRenderer) RenderOpportunity(index int, o economic.Opportunity) string {
	var b strings.Builder
	title := strings.ReplaceAll(string(o.Kind), "_", " ")
	fmt.Fprintf(&b, "#### %d. %s: $%.2f", index, title, o.ProfitUSD)
	if o.Severity != "" {
		fmt.Fprintf(&b, " %s %s", SeverityIcon(o.Severity), Title(o.Severity))
	}
	b.WriteString("\n\n")

	switch {
	case o.Simple != nil:
		fmt.Fprintf(&b, "- Buy $%.4f, sell $%.4f, %.2f%% per unit over %.0f tokens\n",
			o.Simple.BuyPrice, o.Simple.SellPrice, o.Simple.ProfitPct, o.Simple.Volume)
	case o.FlashLoan != nil:
		fmt.Fprintf(&b, "- Loan $%.0f, gross $%.2f, fee $%.2f, net $%.2f, ROI %.0f%%\n",
			o.FlashLoan.LoanAmountUSD, o.FlashLoan.GrossProfitUSD, o.FlashLoan.FeeUSD,
			o.FlashLoan.NetProfitUSD, o.FlashLoan.ROIPct)
	case o.Triangular != nil:
		fmt.Fprintf(&b, "- Path %s: $%.2f → $%.2f (%.2f%%)\n",
			strings.Join(o.Triangular.Path, " → "), o.Triangular.StartAmountUSD,
			o.Triangular.FinalAmountUSD, o.Triangular.ProfitPct)
	}
	if len(o.ExecutionSteps) > 0 {
		b.WriteString("\n```\n")
		b.WriteString(strings.Join(o.ExecutionSteps, "\n"))
		b.WriteString("\n```\n")
	}
	return b.String()
}

// RenderTable renders a GitHub-flavoured markdown table.
func (r *MarkdownRenderer) RenderTable(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(header)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(c, "|", "\\|")
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

func SeverityIcon(severity finding.Severity) string {
	switch severity {
	case finding.SeverityCritical:
		return "🔴"
	case finding.SeverityHigh:
		return "🟠"
	case finding.SeverityMedium:
		return "🟡"
	case finding.SeverityLow:
		return "🟢"
	default:
		return "⚪"
	}
}

// Title upper-cases the first letter of a severity label.
func Title(s finding.Severity) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}
