package economic

import (
	"regexp"
	"strings"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

var (
	fixedPriceOracleRe = regexp.MustCompile(`(?s)function\s+getPrice.*?returns.*?\{\s*return\s+\d+`)
	reservePricingRe   = regexp.MustCompile(`price\s*=\s*reserve\w+\s*/\s*reserve\w+`)
)

type patternRule struct {
	pattern EconomicPattern
	match   func(source string) bool
}

var patternRules = []patternRule{
	{
		pattern: EconomicPattern{
			Type:        "fixed_price_oracle",
			Severity:    finding.SeverityHigh,
			Description: "Contract uses fixed price oracle, vulnerable to market price changes",
		},
		match: fixedPriceOracleRe.MatchString,
	},
	{
		pattern: EconomicPattern{
			Type:        "no_slippage_protection",
			Severity:    finding.SeverityMedium,
			Description: "Swap functionality without slippage protection",
		},
		match: func(source string) bool {
			lower := strings.ToLower(source)
			return strings.Contains(lower, "swap") && !strings.Contains(lower, "slippage")
		},
	},
	{
		pattern: EconomicPattern{
			Type:        "flash_loan_vulnerable",
			Severity:    finding.SeverityHigh,
			Description: "Potential flash loan attack vector without reentrancy protection",
		},
		match: func(source string) bool {
			if !strings.Contains(source, "transfer") || !strings.Contains(source, "balanceOf") {
				return false
			}
			return !strings.Contains(source, "nonReentrant") && !strings.Contains(source, "ReentrancyGuard")
		},
	},
	{
		pattern: EconomicPattern{
			Type:        "reserve_based_pricing",
			Severity:    finding.SeverityMedium,
			Description: "Price calculated from reserves, manipulable with large trades",
		},
		match: reservePricingRe.MatchString,
	},
}

// DetectPatterns applies each economic rule independently.
func DetectPatterns(source string) []EconomicPattern {
	var out []EconomicPattern
	for _, r := range patternRules {
		if r.match(source) {
			out = append(out, r.pattern)
		}
	}
	return out
}
