package economic

import (
	"fmt"
	"math"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

const (
	DefaultThreshold = 0.10
	// exploitableRatio is the relative gap above which a discrepancy is
	// considered directly exploitable.
	exploitableRatio = 0.05
)

type Comparator struct {
	threshold float64
	extractor *Extractor
}

func NewComparator(threshold float64) *Comparator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Comparator{threshold: threshold, extractor: NewExtractor()}
}

func (c *Comparator) Threshold() float64 { return c.threshold }

// ComparePrices flags every contract price whose relative distance from the
// mean market price is strictly above the threshold.
func (c *Comparator) ComparePrices(contract, market []PriceRecord) []Discrepancy {
	if len(contract) == 0 || len(market) == 0 {
		return nil
	}

	var sum float64
	for _, m := range market {
		sum += m.USD()
	}
	avg := sum / float64(len(market))
	if avg == 0 || math.IsNaN(avg) || math.IsInf(avg, 0) {
		return nil
	}

	var out []Discrepancy
	for _, p := range contract {
		v := p.USD()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		gap := math.Abs(v - avg)
		pct := gap / avg
		if pct <= c.threshold {
			continue
		}
		out = append(out, Discrepancy{
			ContractPriceUSD:   v,
			MarketPriceUSD:     avg,
			DiscrepancyPct:     pct * 100,
			ProfitPotentialUSD: gap,
			Severity:           discrepancySeverity(pct),
			IsExploitable:      pct > exploitableRatio,
			PatternType:        p.Provenance.Pattern,
			Line:               p.Provenance.Line,
			Context:            p.Provenance.Context,
		})
	}
	return out
}

func discrepancySeverity(pct float64) finding.Severity {
	switch {
	case pct > 0.50:
		return finding.SeverityCritical
	case pct > 0.25:
		return finding.SeverityHigh
	case pct > 0.10:
		return finding.SeverityMedium
	default:
		return finding.SeverityLow
	}
}

// AnalyzeContract runs extraction, comparison and pattern detection over one
// contract against the supplied market quotes.
func (c *Comparator) AnalyzeContract(source string, quotes []MarketQuote) EconomicAnalysis {
	prices := c.extractor.Extract(source)
	discrepancies := c.ComparePrices(prices, MarketRecords(quotes))

	analysis := EconomicAnalysis{
		HasEconomicVulnerabilities: len(discrepancies) > 0,
		Discrepancies:              discrepancies,
		ContractPricesFound:        len(prices),
		MarketPricesAvailable:      len(quotes),
		Patterns:                   DetectPatterns(source),
		HighestSeverity:            finding.SeverityNone,
	}
	for _, d := range discrepancies {
		analysis.TotalProfitPotentialUSD += d.ProfitPotentialUSD
		analysis.HighestSeverity = finding.Max(analysis.HighestSeverity, d.Severity)
		if d.IsExploitable {
			analysis.ExploitableCount++
		}
	}
	return analysis
}

// Findings converts discrepancies and patterns into analyzer findings.
func (a EconomicAnalysis) Findings() []finding.Finding {
	out := make([]finding.Finding, 0, len(a.Discrepancies)+len(a.Patterns))
	for _, d := range a.Discrepancies {
		out = append(out, finding.Finding{
			Type:     "price_discrepancy",
			Severity: d.Severity,
			Description: fmt.Sprintf("%s price $%.4f deviates %.2f%% from market $%.4f",
				d.PatternType, d.ContractPriceUSD, d.DiscrepancyPct, d.MarketPriceUSD),
			Location: lineLocation(d.Line),
			Source:   "economic",
		})
	}
	for _, p := range a.Patterns {
		out = append(out, finding.Finding{
			Type:        p.Type,
			Severity:    p.Severity,
			Description: p.Description,
			Source:      "economic",
		})
	}
	return out
}

func lineLocation(line int) string {
	if line <= 0 {
		return ""
	}
	return fmt.Sprintf("line %d", line)
}
