package economic

import (
	"math/big"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

type PriceSource string

const (
	SourceContract PriceSource = "contract"
	SourceMarket   PriceSource = "market"
)

const (
	PatternHardcodedPrice = "hardcoded_price"
	PatternSalePrice      = "sale_price"
	PatternPoolRatio      = "pool_ratio"
)

type Provenance struct {
	Pattern string `json:"pattern"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

// PriceRecord is a single contract or market price candidate.
// Records carrying a direct USD value set HasUSD; the rest hold a raw
// 18-decimal fixed-point integer in RawValue.
type PriceRecord struct {
	Source     PriceSource `json:"source"`
	ValueUSD   float64     `json:"value_usd"`
	HasUSD     bool        `json:"has_usd"`
	RawValue   *big.Int    `json:"raw_value,omitempty"`
	TokenRef   string      `json:"token_ref,omitempty"`
	DEX        string      `json:"dex,omitempty"`
	Provenance Provenance  `json:"provenance"`
}

var weiPerUnit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// USD returns the record's USD value, scaling raw integers by 1e18.
func (p PriceRecord) USD() float64 {
	if p.HasUSD || p.RawValue == nil {
		return p.ValueUSD
	}
	v, _ := new(big.Float).Quo(new(big.Float).SetInt(p.RawValue), weiPerUnit).Float64()
	return v
}

// MarketQuote is one resolved DEX quote for a token.
type MarketQuote struct {
	PriceUSD     float64 `json:"price_usd"`
	DEX          string  `json:"dex"`
	TokenAddress string  `json:"token_address"`
}

func (q MarketQuote) Record() PriceRecord {
	return PriceRecord{
		Source:   SourceMarket,
		ValueUSD: q.PriceUSD,
		HasUSD:   true,
		TokenRef: q.TokenAddress,
		DEX:      q.DEX,
	}
}

// MarketRecords converts quotes into market price records.
func MarketRecords(quotes []MarketQuote) []PriceRecord {
	out := make([]PriceRecord, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q.Record())
	}
	return out
}

type Discrepancy struct {
	ContractPriceUSD   float64          `json:"contract_price_usd"`
	MarketPriceUSD     float64          `json:"market_price_usd"`
	DiscrepancyPct     float64          `json:"discrepancy_pct"`
	ProfitPotentialUSD float64          `json:"profit_potential_usd"`
	Severity           finding.Severity `json:"severity"`
	IsExploitable      bool             `json:"is_exploitable"`
	PatternType        string           `json:"pattern_type"`
	Line               int              `json:"line"`
	Context            string           `json:"context,omitempty"`
}

type EconomicPattern struct {
	Type        string           `json:"type"`
	Severity    finding.Severity `json:"severity"`
	Description string           `json:"description"`
}

// EconomicAnalysis is the combined result of extraction, comparison and
// pattern detection for one contract.
type EconomicAnalysis struct {
	HasEconomicVulnerabilities bool              `json:"has_economic_vulnerabilities"`
	Discrepancies              []Discrepancy     `json:"discrepancies"`
	ContractPricesFound        int               `json:"contract_prices_found"`
	MarketPricesAvailable      int               `json:"market_prices_available"`
	TotalProfitPotentialUSD    float64           `json:"total_profit_potential_usd"`
	Patterns                   []EconomicPattern `json:"patterns"`
	HighestSeverity            finding.Severity  `json:"highest_severity"`
	ExploitableCount           int               `json:"exploitable_count"`
}
