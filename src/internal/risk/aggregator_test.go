package risk

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

func findingsOf(severities ...finding.Severity) []finding.Finding {
	out := make([]finding.Finding, 0, len(severities))
	for i, s := range severities {
		out = append(out, finding.Finding{Type: "t", Severity: s, Location: string(rune('a' + i))})
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		findings  []finding.Finding
		wantTotal int
		wantScore float64
		wantHist  map[finding.Severity]int
	}{
		{
			name:      "no findings",
			wantTotal: 0,
			wantScore: 0,
			wantHist:  map[finding.Severity]int{},
		},
		{
			name: "one of each level",
			findings: findingsOf(finding.SeverityCritical, finding.SeverityHigh, finding.SeverityMedium,
				finding.SeverityLow, finding.SeverityInformational),
			wantTotal: 5,
			wantScore: 42.5,
			wantHist: map[finding.Severity]int{
				finding.SeverityCritical: 1, finding.SeverityHigh: 1, finding.SeverityMedium: 1,
				finding.SeverityLow: 1, finding.SeverityInformational: 1,
			},
		},
		{
			name:      "score is capped",
			findings:  findingsOf(finding.SeverityCritical, finding.SeverityCritical, finding.SeverityCritical, finding.SeverityCritical, finding.SeverityHigh),
			wantTotal: 5,
			wantScore: 100,
			wantHist:  map[finding.Severity]int{finding.SeverityCritical: 4, finding.SeverityHigh: 1},
		},
		{
			name:      "unknown and missing severities count as low",
			findings:  findingsOf("bogus", "", "HIGH"),
			wantTotal: 3,
			wantScore: 14,
			wantHist:  map[finding.Severity]int{finding.SeverityLow: 2, finding.SeverityHigh: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.findings, nil)
			if got.TotalVulnerabilities != tt.wantTotal {
				t.Errorf("total = %d, want %d", got.TotalVulnerabilities, tt.wantTotal)
			}
			if got.RiskScore != tt.wantScore {
				t.Errorf("score = %v, want %v", got.RiskScore, tt.wantScore)
			}
			for _, level := range finding.Levels {
				if got.Severity[level] != tt.wantHist[level] {
					t.Errorf("hist[%s] = %d, want %d", level, got.Severity[level], tt.wantHist[level])
				}
			}
			sum := 0
			for _, c := range got.Severity {
				sum += c
			}
			if sum != got.TotalVulnerabilities {
				t.Errorf("histogram sums to %d, total is %d", sum, got.TotalVulnerabilities)
			}
			if got.RiskScore < 0 || got.RiskScore > MaxScore {
				t.Errorf("score %v out of range", got.RiskScore)
			}
		})
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	base := findingsOf(finding.SeverityCritical, finding.SeverityLow, finding.SeverityInformational,
		finding.SeverityMedium, finding.SeverityInformational, finding.SeverityHigh, "weird")
	analyzers := []string{"slither", "economic", "ai", "mythril"}
	want := Aggregate(base, analyzers)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		perm := append([]finding.Finding(nil), base...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		names := append([]string(nil), analyzers...)
		rng.Shuffle(len(names), func(a, b int) { names[a], names[b] = names[b], names[a] })

		if got := Aggregate(perm, names); !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation %d changed summary: %+v vs %+v", i, got, want)
		}
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	original := findingsOf(finding.SeverityHigh, finding.SeverityMedium, finding.SeverityInformational,
		finding.SeverityInformational, finding.SeverityInformational, "unknown")
	summary := Aggregate(original, []string{"economic"})

	again := Aggregate(FromHistogram(summary.Severity), []string{"economic"})
	if again.RiskScore != summary.RiskScore {
		t.Errorf("round trip score = %v, want %v", again.RiskScore, summary.RiskScore)
	}
	if !reflect.DeepEqual(again.Severity, summary.Severity) {
		t.Errorf("round trip histogram = %v, want %v", again.Severity, summary.Severity)
	}
}

func TestScoreMonotonic(t *testing.T) {
	hist := map[finding.Severity]int{}
	prev := Score(hist)
	for i := 0; i < 30; i++ {
		hist[finding.Levels[i%len(finding.Levels)]]++
		cur := Score(hist)
		if cur < prev {
			t.Fatalf("score decreased from %v to %v", prev, cur)
		}
		prev = cur
	}
}

func TestAnalyzersRunIsSortedSet(t *testing.T) {
	got := Aggregate(nil, []string{"slither", "ai", "", "slither", "economic"}).AnalyzersRun
	want := []string{"ai", "economic", "slither"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AnalyzersRun = %v, want %v", got, want)
	}
}
