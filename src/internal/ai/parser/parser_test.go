package parser

import (
	"testing"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantVulns  int
		wantScore  float64
		wantSev    string
		wantParseE bool
	}{
		{
			name:      "direct",
			response:  `{"vulnerabilities":[{"type":"reentrancy","severity":"High","description":"d"}],"risk_score":40}`,
			wantVulns: 1, wantScore: 40, wantSev: "high",
		},
		{
			name:      "fenced",
			response:  "Here you go:\n```json\n{\"vulnerabilities\":[{\"type\":\"x\",\"severity\":\"CRITICAL\"}],\"risk_score\":\"85%\"}\n```",
			wantVulns: 1, wantScore: 85, wantSev: "critical",
		},
		{
			name:      "embedded object with alias",
			response:  `Analysis: {"critical_vulnerabilities":[{"type":"oracle","severity":"moderate","location":"getPrice"}],"risk_score":250,"overall_assessment":"bad"} thanks`,
			wantVulns: 1, wantScore: 100, wantSev: "medium",
		},
		{
			name:      "bare list",
			response:  `[{"type":"a","severity":"weird"}]`,
			wantVulns: 1, wantSev: "low",
		},
		{
			name:       "no json",
			response:   "I could not analyze this contract.",
			wantParseE: true,
		},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.response)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if (got.ParseError != "") != tt.wantParseE {
				t.Fatalf("ParseError = %q", got.ParseError)
			}
			if len(got.Vulnerabilities) != tt.wantVulns {
				t.Fatalf("vulns = %d, want %d", len(got.Vulnerabilities), tt.wantVulns)
			}
			if got.RiskScore != tt.wantScore {
				t.Errorf("risk score = %v, want %v", got.RiskScore, tt.wantScore)
			}
			if tt.wantVulns > 0 && got.Vulnerabilities[0].Severity != tt.wantSev {
				t.Errorf("severity = %q, want %q", got.Vulnerabilities[0].Severity, tt.wantSev)
			}
		})
	}
}

func TestParseRecommendationsAndSummary(t *testing.T) {
	got, _ := NewParser().Parse(`{"recommendations":[{"priority":"HIGH","issue":"reentrancy","solution":"use a guard"}],"overall_assessment":"risky"}`)
	if len(got.Recommendations) != 1 || got.Recommendations[0] != "[high] reentrancy: use a guard" {
		t.Errorf("recommendations = %q", got.Recommendations)
	}
	if got.Summary != "risky" {
		t.Errorf("summary = %q", got.Summary)
	}
}

func TestFindings(t *testing.T) {
	got, _ := NewParser().Parse(`{"vulnerabilities":[{"type":"t","severity":"high","line_numbers":[7]}]}`)
	fs := got.Findings("ai")
	want := finding.Finding{Type: "t", Severity: finding.SeverityHigh, Description: "No description provided", Location: "line 7", Source: "ai"}
	if len(fs) != 1 || fs[0] != want {
		t.Errorf("findings = %+v", fs)
	}
}
