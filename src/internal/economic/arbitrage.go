package economic

import (
	"fmt"

	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultMinProfitUSD = 100.0
	DefaultVolume       = 1000.0

	triangularStartUSD = 1000.0
	flashLoanFeeRate   = 0.0009
	// flashLoanMinPct is in percentage points.
	flashLoanMinPct = 1.0
	// flashLoanCriticalUSD is the gross profit above which a flash-loan
	// opportunity is critical.
	flashLoanCriticalUSD = 10000.0
	// divPrecision matches the digits kept for DEX price ratios.
	divPrecision = 36
)

var flashLoanSizesUSD = []float64{10000, 100000, 1000000}

type OpportunityKind string

const (
	KindSimple     OpportunityKind = "simple_arbitrage"
	KindTriangular OpportunityKind = "triangular_arbitrage"
	KindFlashLoan  OpportunityKind = "flash_loan_arbitrage"
)

type SimpleArbitrage struct {
	BuyPrice      float64 `json:"buy_price"`
	SellPrice     float64 `json:"sell_price"`
	ProfitPerUnit float64 `json:"profit_per_unit"`
	ProfitPct     float64 `json:"profit_pct"`
	Volume        float64 `json:"volume"`
}

type TriangularArbitrage struct {
	StartAmountUSD float64  `json:"start_amount_usd"`
	FinalAmountUSD float64  `json:"final_amount_usd"`
	ProfitPct      float64  `json:"profit_pct"`
	Path           []string `json:"path"`
}

type FlashLoanArbitrage struct {
	LoanAmountUSD  float64 `json:"loan_amount_usd"`
	BuyPrice       float64 `json:"buy_price"`
	SellPrice      float64 `json:"sell_price"`
	GrossProfitUSD float64 `json:"gross_profit_usd"`
	FeeUSD         float64 `json:"fee_usd"`
	NetProfitUSD   float64 `json:"net_profit_usd"`
	ROIPct         float64 `json:"roi_pct"`
}

// Opportunity is a tagged variant; exactly one of the detail pointers is
// set, matching Kind. ProfitUSD is net profit for flash loans.
type Opportunity struct {
	Kind           OpportunityKind      `json:"type"`
	ProfitUSD      float64              `json:"profit_usd"`
	Severity       finding.Severity     `json:"severity,omitempty"`
	ExecutionSteps []string             `json:"execution_steps,omitempty"`
	Simple         *SimpleArbitrage     `json:"simple,omitempty"`
	Triangular     *TriangularArbitrage `json:"triangular,omitempty"`
	FlashLoan      *FlashLoanArbitrage  `json:"flash_loan,omitempty"`
}

type ArbitrageAnalysis struct {
	Opportunities           []Opportunity `json:"opportunities"`
	TotalOpportunities      int           `json:"total_opportunities"`
	TotalProfitPotentialUSD float64       `json:"total_profit_potential_usd"`
	HighestProfit           *Opportunity  `json:"highest_profit_opportunity"`
	IsProfitable            bool          `json:"is_profitable"`
}

type ArbitrageDetector struct {
	minProfitUSD float64
}

func NewArbitrageDetector(minProfitUSD float64) *ArbitrageDetector {
	if minProfitUSD < 0 {
		minProfitUSD = DefaultMinProfitUSD
	}
	return &ArbitrageDetector{minProfitUSD: minProfitUSD}
}

func (d *ArbitrageDetector) MinProfitUSD() float64 { return d.minProfitUSD }

// DetectSimple prices a buy-low/sell-high round trip. A volume <= 0 means
// the default estimation volume. A zero buy price is a free token and is
// reported; ProfitPct is 0 then.
func (d *ArbitrageDetector) DetectSimple(buyPrice, sellPrice, volume float64) (Opportunity, bool) {
	if sellPrice <= buyPrice || buyPrice < 0 {
		return Opportunity{}, false
	}
	if volume <= 0 {
		volume = DefaultVolume
	}

	perUnit := sellPrice - buyPrice
	total := perUnit * volume
	if total < d.minProfitUSD {
		return Opportunity{}, false
	}

	profitPct := 0.0
	if buyPrice > 0 {
		profitPct = perUnit / buyPrice * 100
	}

	return Opportunity{
		Kind:      KindSimple,
		ProfitUSD: total,
		ExecutionSteps: []string{
			fmt.Sprintf("1. Buy tokens at $%.4f", buyPrice),
			fmt.Sprintf("2. Sell tokens at $%.4f", sellPrice),
			fmt.Sprintf("3. Profit: $%.4f per token", perUnit),
		},
		Simple: &SimpleArbitrage{
			BuyPrice:      buyPrice,
			SellPrice:     sellPrice,
			ProfitPerUnit: perUnit,
			ProfitPct:     profitPct,
			Volume:        volume,
		},
	}, true
}

// DetectTriangular walks every i<j<k triple of quotes.
// The simulation treats USD prices as exchange ratios, so it does not model
// a real three-hop trade.
func (d *ArbitrageDetector) DetectTriangular(quotes []MarketQuote) []Opportunity {
	if len(quotes) < 3 {
		return nil
	}

	var out []Opportunity
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			for k := j + 1; k < len(quotes); k++ {
				opp, ok := triangularProfit(quotes[i], quotes[j], quotes[k])
				if ok && opp.ProfitUSD >= d.minProfitUSD {
					out = append(out, opp)
				}
			}
		}
	}
	return out
}

func triangularProfit(q1, q2, q3 MarketQuote) (Opportunity, bool) {
	if q1.PriceUSD == 0 {
		return Opportunity{}, false
	}
	amount1 := triangularStartUSD / q1.PriceUSD
	amount2 := amount1 * q2.PriceUSD / q1.PriceUSD
	final := amount2 * q3.PriceUSD
	profit := final - triangularStartUSD
	if !(profit > 0) {
		return Opportunity{}, false
	}

	path := []string{dexName(q1), dexName(q2), dexName(q3)}
	return Opportunity{
		Kind:      KindTriangular,
		ProfitUSD: profit,
		ExecutionSteps: []string{
			fmt.Sprintf("1. Swap $%.2f on %s", triangularStartUSD, path[0]),
			fmt.Sprintf("2. Swap via %s", path[1]),
			fmt.Sprintf("3. Exit to USD on %s for $%.2f", path[2], final),
		},
		Triangular: &TriangularArbitrage{
			StartAmountUSD: triangularStartUSD,
			FinalAmountUSD: final,
			ProfitPct:      profit / triangularStartUSD * 100,
			Path:           path,
		},
	}, true
}

func dexName(q MarketQuote) string {
	if q.DEX == "" {
		return "unknown"
	}
	return q.DEX
}

// DetectFlashLoan scales every discrepancy above 1% across the fixed loan
// sizes, buying at the contract price and selling at the market price.
func (d *ArbitrageDetector) DetectFlashLoan(discrepancies []Discrepancy, _ []MarketQuote) []Opportunity {
	var out []Opportunity
	for _, disc := range discrepancies {
		if disc.DiscrepancyPct <= flashLoanMinPct {
			continue
		}
		for _, loan := range flashLoanSizesUSD {
			opp, ok := d.flashLoanOpportunity(loan, disc.ContractPriceUSD, disc.MarketPriceUSD)
			if ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

func (d *ArbitrageDetector) flashLoanOpportunity(loan, buyPrice, sellPrice float64) (Opportunity, bool) {
	if sellPrice <= buyPrice || buyPrice <= 0 {
		return Opportunity{}, false
	}
	// Quoted prices such as 1.1 must stay exact here: gross profit is
	// compared against the critical boundary.
	loanD := decimal.NewFromFloat(loan)
	revenue := loanD.Mul(decimal.NewFromFloat(sellPrice)).DivRound(decimal.NewFromFloat(buyPrice), divPrecision)
	grossD := revenue.Sub(loanD)
	gross := grossD.InexactFloat64()
	if !grossD.IsPositive() || gross < d.minProfitUSD {
		return Opportunity{}, false
	}

	feeD := loanD.Mul(decimal.NewFromFloat(flashLoanFeeRate))
	fee := feeD.InexactFloat64()
	net := grossD.Sub(feeD).InexactFloat64()
	severity := finding.SeverityHigh
	if grossD.GreaterThan(decimal.NewFromFloat(flashLoanCriticalUSD)) {
		severity = finding.SeverityCritical
	}

	return Opportunity{
		Kind:      KindFlashLoan,
		ProfitUSD: net,
		Severity:  severity,
		ExecutionSteps: []string{
			fmt.Sprintf("1. Flash loan $%s from Aave/dYdX", formatThousands(loan, 0)),
			fmt.Sprintf("2. Buy tokens from contract at $%.4f", buyPrice),
			fmt.Sprintf("3. Sell tokens on DEX at $%.4f", sellPrice),
			"4. Repay flash loan + fee",
			fmt.Sprintf("5. Keep profit: $%s", formatThousands(gross, 2)),
		},
		FlashLoan: &FlashLoanArbitrage{
			LoanAmountUSD:  loan,
			BuyPrice:       buyPrice,
			SellPrice:      sellPrice,
			GrossProfitUSD: gross,
			FeeUSD:         fee,
			NetProfitUSD:   net,
			ROIPct:         gross / fee * 100,
		},
	}, true
}

// Analyze runs simple (per discrepancy), flash-loan, then triangular
// detection and summarizes the union.
func (d *ArbitrageDetector) Analyze(discrepancies []Discrepancy, quotes []MarketQuote) ArbitrageAnalysis {
	var opps []Opportunity
	for _, disc := range discrepancies {
		if opp, ok := d.DetectSimple(disc.ContractPriceUSD, disc.MarketPriceUSD, 0); ok {
			opps = append(opps, opp)
		}
	}
	opps = append(opps, d.DetectFlashLoan(discrepancies, quotes)...)
	if len(quotes) >= 3 {
		opps = append(opps, d.DetectTriangular(quotes)...)
	}

	analysis := ArbitrageAnalysis{
		Opportunities:      opps,
		TotalOpportunities: len(opps),
	}
	for i := range opps {
		analysis.TotalProfitPotentialUSD += opps[i].ProfitUSD
		if analysis.HighestProfit == nil || opps[i].ProfitUSD > analysis.HighestProfit.ProfitUSD {
			analysis.HighestProfit = &opps[i]
		}
	}
	analysis.IsProfitable = analysis.TotalProfitPotentialUSD >= d.minProfitUSD
	return analysis
}

var usdPrinter = message.NewPrinter(language.English)

// formatThousands renders v with the given precision and comma grouping.
func formatThousands(v float64, prec int) string {
	return usdPrinter.Sprintf(fmt.Sprintf("%%.%df", prec), v)
}
