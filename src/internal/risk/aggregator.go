package risk

import (
	"slices"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

const MaxScore = 100.0

var weights = map[finding.Severity]float64{
	finding.SeverityCritical:      25,
	finding.SeverityHigh:          10,
	finding.SeverityMedium:        5,
	finding.SeverityLow:           2,
	finding.SeverityInformational: 0.5,
}

type AuditSummary struct {
	TotalVulnerabilities int                      `json:"total_vulnerabilities"`
	Severity             map[finding.Severity]int `json:"severity"`
	RiskScore            float64                  `json:"risk_score"`
	AnalyzersRun         []string                 `json:"analyzers_run"`
}

// Aggregate folds findings from every analyzer into one summary. The result
// does not depend on the order of findings or analyzer names.
func Aggregate(findings []finding.Finding, analyzersRun []string) AuditSummary {
	hist := emptyHistogram()
	for _, f := range findings {
		hist[normalize(f.Severity)]++
	}

	return AuditSummary{
		TotalVulnerabilities: len(findings),
		Severity:             hist,
		RiskScore:            Score(hist),
		AnalyzersRun:         analyzerSet(analyzersRun),
	}
}

// Score applies the severity weights to a histogram, capped at MaxScore.
// Levels are summed in a fixed order so the float result is reproducible.
func Score(hist map[finding.Severity]int) float64 {
	var score float64
	for _, level := range finding.Levels {
		score += float64(hist[level]) * weights[level]
	}
	return min(score, MaxScore)
}

// FromHistogram expands counts back into synthetic findings.
func FromHistogram(hist map[finding.Severity]int) []finding.Finding {
	var out []finding.Finding
	for _, level := range finding.Levels {
		for i := 0; i < hist[level]; i++ {
			out = append(out, finding.Finding{Type: "synthetic", Severity: level})
		}
	}
	return out
}

func normalize(s finding.Severity) finding.Severity {
	if _, ok := weights[s]; ok {
		return s
	}
	return finding.ParseSeverity(string(s))
}

func emptyHistogram() map[finding.Severity]int {
	hist := make(map[finding.Severity]int, len(finding.Levels))
	for _, level := range finding.Levels {
		hist[level] = 0
	}
	return hist
}

func analyzerSet(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
