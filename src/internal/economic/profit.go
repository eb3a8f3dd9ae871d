package economic

import (
	"fmt"
	"math/big"

	"github.com/VectorBits/econaudit/src/internal/finding"
	"github.com/shopspring/decimal"
)

const (
	DefaultFlashLoanFeePct = 0.09
	nativeDecimals         = 18
)

// defaultInitialBalanceWei is assumed when a sandbox run only reports a
// profit delta: 100 native tokens.
var defaultInitialBalanceWei = new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(nativeDecimals), nil))

type NativeToken struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	PriceUSD float64 `json:"price_usd" yaml:"price_usd"`
}

type ProfitResult struct {
	InitialBalanceWei *big.Int        `json:"initial_balance_wei"`
	FinalBalanceWei   *big.Int        `json:"final_balance_wei"`
	ProfitWei         *big.Int        `json:"profit_wei"`
	ProfitNative      decimal.Decimal `json:"profit_native"`
	ProfitUSD         float64         `json:"profit_usd"`
	ROIPct            float64         `json:"roi_pct"`
	IsProfitable      bool            `json:"is_profitable"`
	NativeToken       string          `json:"native_token"`
	NativePriceUSD    float64         `json:"native_price_usd"`
}

type FlashLoanProfit struct {
	LoanAmountWei  *big.Int `json:"loan_amount_wei"`
	RevenueWei     *big.Int `json:"revenue_wei"`
	FeeWei         *big.Int `json:"fee_wei"`
	GrossProfitWei *big.Int `json:"gross_profit_wei"`
	NetProfitWei   *big.Int `json:"net_profit_wei"`
	GrossProfitUSD float64  `json:"gross_profit_usd"`
	NetProfitUSD   float64  `json:"net_profit_usd"`
	FeeUSD         float64  `json:"fee_usd"`
	// ROIPct is relative to the fee paid, not the loan amount.
	ROIPct       float64 `json:"roi_pct"`
	IsProfitable bool    `json:"is_profitable"`
	NativeToken  string  `json:"native_token"`
}

type ThresholdCheck struct {
	IsValid        bool             `json:"is_valid"`
	MeetsThreshold bool             `json:"meets_threshold"`
	Severity       finding.Severity `json:"severity"`
	ProfitUSD      float64          `json:"profit_usd"`
}

func (t ThresholdCheck) Summary() string {
	verdict := "NOT"
	if t.IsValid {
		verdict = "IS"
	}
	return fmt.Sprintf("Exploit %s profitable ($%s profit)", verdict, formatThousands(t.ProfitUSD, 2))
}

type ProfitCalculator struct {
	native NativeToken
}

func NewProfitCalculator(native NativeToken) *ProfitCalculator {
	if native.Symbol == "" {
		native.Symbol = "NATIVE"
	}
	return &ProfitCalculator{native: native}
}

func (c *ProfitCalculator) NativeToken() NativeToken { return c.native }

// CalculateProfit converts a balance delta into native and USD profit.
func (c *ProfitCalculator) CalculateProfit(initialWei, finalWei *big.Int) ProfitResult {
	initialWei = orZero(initialWei)
	finalWei = orZero(finalWei)

	profitWei := new(big.Int).Sub(finalWei, initialWei)
	native := weiToNative(profitWei)

	return ProfitResult{
		InitialBalanceWei: new(big.Int).Set(initialWei),
		FinalBalanceWei:   new(big.Int).Set(finalWei),
		ProfitWei:         profitWei,
		ProfitNative:      native,
		ProfitUSD:         c.toUSD(native),
		ROIPct:            ratioPct(profitWei, initialWei),
		IsProfitable:      profitWei.Sign() > 0,
		NativeToken:       c.native.Symbol,
		NativePriceUSD:    c.native.PriceUSD,
	}
}

// CalculateFromBalances reads initial_balance/final_balance, falling back to
// a profit delta over a 100-token starting balance when neither is set.
func (c *ProfitCalculator) CalculateFromBalances(balances map[string]*big.Int) ProfitResult {
	initial := orZero(balances["initial_balance"])
	final := orZero(balances["final_balance"])
	if initial.Sign() == 0 && final.Sign() == 0 {
		initial = new(big.Int).Set(defaultInitialBalanceWei)
		final = new(big.Int).Add(initial, orZero(balances["profit"]))
	}
	return c.CalculateProfit(initial, final)
}

// CalculateFlashLoanProfit prices a flash-loan run; feePct is a percentage
// (0.09 means 0.09%).
func (c *ProfitCalculator) CalculateFlashLoanProfit(loanWei, revenueWei *big.Int, feePct float64) FlashLoanProfit {
	loanWei = orZero(loanWei)
	revenueWei = orZero(revenueWei)

	feeWei := decimal.NewFromBigInt(loanWei, 0).
		Mul(decimal.NewFromFloat(feePct)).
		Div(decimal.NewFromInt(100)).
		Truncate(0).
		BigInt()
	gross := new(big.Int).Sub(revenueWei, loanWei)
	net := new(big.Int).Sub(gross, feeWei)

	return FlashLoanProfit{
		LoanAmountWei:  new(big.Int).Set(loanWei),
		RevenueWei:     new(big.Int).Set(revenueWei),
		FeeWei:         feeWei,
		GrossProfitWei: gross,
		NetProfitWei:   net,
		GrossProfitUSD: c.toUSD(weiToNative(gross)),
		NetProfitUSD:   c.toUSD(weiToNative(net)),
		FeeUSD:         c.toUSD(weiToNative(feeWei)),
		ROIPct:         ratioPct(net, feeWei),
		IsProfitable:   net.Sign() > 0,
		NativeToken:    c.native.Symbol,
	}
}

// ValidateThreshold checks a profit result against the reporting floor.
func ValidateThreshold(result ProfitResult, minProfitUSD float64) ThresholdCheck {
	meets := result.ProfitUSD >= minProfitUSD
	return ThresholdCheck{
		IsValid:        result.IsProfitable && meets,
		MeetsThreshold: meets,
		Severity:       ClassifySeverity(result.ProfitUSD),
		ProfitUSD:      result.ProfitUSD,
	}
}

func ClassifySeverity(profitUSD float64) finding.Severity {
	switch {
	case profitUSD >= 10000:
		return finding.SeverityCritical
	case profitUSD >= 1000:
		return finding.SeverityHigh
	case profitUSD >= 100:
		return finding.SeverityMedium
	case profitUSD > 0:
		return finding.SeverityLow
	default:
		return finding.SeverityNone
	}
}

func (c *ProfitCalculator) toUSD(native decimal.Decimal) float64 {
	return native.Mul(decimal.NewFromFloat(c.native.PriceUSD)).InexactFloat64()
}

func weiToNative(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -nativeDecimals)
}

// WeiToNative renders a wei amount in whole native units.
func WeiToNative(wei *big.Int) decimal.Decimal {
	return weiToNative(orZero(wei))
}

func ratioPct(num, den *big.Int) float64 {
	if den.Sign() == 0 {
		return 0
	}
	r, _ := new(big.Rat).SetFrac(num, den).Float64()
	return r * 100
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
