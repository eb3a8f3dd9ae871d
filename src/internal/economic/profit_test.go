package economic

import (
	"math/big"
	"testing"

	"github.com/VectorBits/econaudit/src/internal/finding"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestCalculateProfit(t *testing.T) {
	calc := NewProfitCalculator(NativeToken{Symbol: "ETH", PriceUSD: 2000})

	tests := []struct {
		name           string
		initial, final *big.Int
		wantUSD        float64
		wantROI        float64
		wantProfitable bool
	}{
		{name: "one ether gained", initial: ether(1), final: ether(2), wantUSD: 2000, wantROI: 100, wantProfitable: true},
		{name: "loss", initial: ether(2), final: ether(1), wantUSD: -2000, wantROI: -50, wantProfitable: false},
		{name: "zero initial balance", initial: big.NewInt(0), final: ether(3), wantUSD: 6000, wantROI: 0, wantProfitable: true},
		{name: "nil balances", initial: nil, final: nil, wantUSD: 0, wantROI: 0, wantProfitable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.CalculateProfit(tt.initial, tt.final)
			if got.ProfitUSD != tt.wantUSD {
				t.Errorf("ProfitUSD = %v, want %v", got.ProfitUSD, tt.wantUSD)
			}
			if got.ROIPct != tt.wantROI {
				t.Errorf("ROIPct = %v, want %v", got.ROIPct, tt.wantROI)
			}
			if got.IsProfitable != tt.wantProfitable {
				t.Errorf("IsProfitable = %v, want %v", got.IsProfitable, tt.wantProfitable)
			}
			if got.NativeToken != "ETH" {
				t.Errorf("NativeToken = %s", got.NativeToken)
			}
		})
	}
}

func TestCalculateProfitNativeUnits(t *testing.T) {
	calc := NewProfitCalculator(NativeToken{Symbol: "BNB", PriceUSD: 300})
	half := new(big.Int).Div(ether(1), big.NewInt(2))

	got := calc.CalculateProfit(ether(10), new(big.Int).Add(ether(10), half))
	if got.ProfitNative.String() != "0.5" {
		t.Errorf("ProfitNative = %s, want 0.5", got.ProfitNative)
	}
	if got.ProfitUSD != 150 {
		t.Errorf("ProfitUSD = %v, want 150", got.ProfitUSD)
	}
}

func TestCalculateFromBalances(t *testing.T) {
	calc := NewProfitCalculator(NativeToken{Symbol: "ETH", PriceUSD: 2000})

	got := calc.CalculateFromBalances(map[string]*big.Int{"profit": ether(1)})
	if got.InitialBalanceWei.Cmp(ether(100)) != 0 {
		t.Errorf("initial = %s, want 100 ether", got.InitialBalanceWei)
	}
	if got.ROIPct != 1 {
		t.Errorf("ROIPct = %v, want 1", got.ROIPct)
	}

	got = calc.CalculateFromBalances(map[string]*big.Int{"initial_balance": ether(4), "final_balance": ether(5)})
	if got.ROIPct != 25 {
		t.Errorf("ROIPct = %v, want 25", got.ROIPct)
	}
}

func TestCalculateFlashLoanProfit(t *testing.T) {
	calc := NewProfitCalculator(NativeToken{Symbol: "ETH", PriceUSD: 1})

	got := calc.CalculateFlashLoanProfit(ether(100), ether(110), DefaultFlashLoanFeePct)
	wantFee, _ := new(big.Int).SetString("90000000000000000", 10)
	if got.FeeWei.Cmp(wantFee) != 0 {
		t.Errorf("FeeWei = %s, want %s", got.FeeWei, wantFee)
	}
	if got.GrossProfitWei.Cmp(ether(10)) != 0 {
		t.Errorf("GrossProfitWei = %s, want 10 ether", got.GrossProfitWei)
	}
	wantNet := new(big.Int).Sub(ether(10), wantFee)
	if got.NetProfitWei.Cmp(wantNet) != 0 {
		t.Errorf("NetProfitWei = %s, want %s", got.NetProfitWei, wantNet)
	}
	if got.NetProfitUSD != 9.91 {
		t.Errorf("NetProfitUSD = %v, want 9.91", got.NetProfitUSD)
	}
	wantROI, _ := new(big.Rat).SetFrac(wantNet, wantFee).Float64()
	if got.ROIPct != wantROI*100 {
		t.Errorf("ROIPct = %v, want fee-relative %v", got.ROIPct, wantROI*100)
	}
	if !got.IsProfitable {
		t.Error("expected profitable flash loan")
	}

	free := calc.CalculateFlashLoanProfit(ether(100), ether(101), 0)
	if free.FeeWei.Sign() != 0 || free.ROIPct != 0 {
		t.Errorf("zero fee: fee=%s roi=%v", free.FeeWei, free.ROIPct)
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		usd  float64
		want finding.Severity
	}{
		{10000, finding.SeverityCritical},
		{9999.99, finding.SeverityHigh},
		{1000, finding.SeverityHigh},
		{999.99, finding.SeverityMedium},
		{100, finding.SeverityMedium},
		{99.99, finding.SeverityLow},
		{0.01, finding.SeverityLow},
		{0, finding.SeverityNone},
		{-50, finding.SeverityNone},
	}
	for _, tt := range tests {
		if got := ClassifySeverity(tt.usd); got != tt.want {
			t.Errorf("ClassifySeverity(%v) = %s, want %s", tt.usd, got, tt.want)
		}
	}
}

func TestValidateThreshold(t *testing.T) {
	calc := NewProfitCalculator(NativeToken{Symbol: "ETH", PriceUSD: 2000})

	ok := ValidateThreshold(calc.CalculateProfit(ether(1), ether(2)), DefaultMinProfitUSD)
	if !ok.IsValid || !ok.MeetsThreshold || ok.Severity != finding.SeverityHigh {
		t.Errorf("unexpected check %+v", ok)
	}
	if ok.Summary() != "Exploit IS profitable ($2,000.00 profit)" {
		t.Errorf("Summary() = %q", ok.Summary())
	}

	loss := ValidateThreshold(calc.CalculateProfit(ether(2), ether(1)), DefaultMinProfitUSD)
	if loss.IsValid || loss.MeetsThreshold || loss.Severity != finding.SeverityNone {
		t.Errorf("unexpected check %+v", loss)
	}
	if loss.Summary() != "Exploit NOT profitable ($-2,000.00 profit)" {
		t.Errorf("Summary() = %q", loss.Summary())
	}
}

func TestNewProfitCalculatorDefaultsSymbol(t *testing.T) {
	if got := NewProfitCalculator(NativeToken{PriceUSD: 1}).NativeToken().Symbol; got != "NATIVE" {
		t.Errorf("symbol = %s, want NATIVE", got)
	}
}
