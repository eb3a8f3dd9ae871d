package sandbox

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VectorBits/econaudit/src/internal/economic"
)

// BalanceReader is the slice of *ethclient.Client the probe needs.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ProbeResult summarises the native balance held by a contract on the fork
// and the profit measured around an optional action. Snapshot is set when no
// action ran; Profit and Threshold are then a zero delta, not a verdict.
type ProbeResult struct {
	Snapshot       bool                    `json:"balance_snapshot"`
	Fork           *Fork                   `json:"fork,omitempty"`
	Account        string                  `json:"account"`
	BalanceWei     *big.Int                `json:"balance_wei"`
	ValueAtRiskUSD float64                 `json:"value_at_risk_usd"`
	Profit         economic.ProfitResult   `json:"profit"`
	Threshold      economic.ThresholdCheck `json:"threshold"`
}

type Probe struct {
	reader BalanceReader
	calc   *economic.ProfitCalculator
}

func NewProbe(reader BalanceReader, calc *economic.ProfitCalculator) *Probe {
	return &Probe{reader: reader, calc: calc}
}

func (p *Probe) balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := p.reader.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", account.Hex(), err)
	}
	return bal, nil
}

// Measure reads account's balance before and after action and prices the
// difference. A nil action measures the balance as it stands.
func (p *Probe) Measure(ctx context.Context, account string, minProfitUSD float64, action func(ctx context.Context) error) (*ProbeResult, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("invalid account address: %s", account)
	}
	addr := common.HexToAddress(account)

	initial, err := p.balance(ctx, addr)
	if err != nil {
		return nil, err
	}
	final := initial
	if action != nil {
		if err := action(ctx); err != nil {
			return nil, fmt.Errorf("sandbox action failed: %w", err)
		}
		if final, err = p.balance(ctx, addr); err != nil {
			return nil, err
		}
	}

	profit := p.calc.CalculateProfit(initial, final)
	return &ProbeResult{
		Snapshot:       action == nil,
		Account:        addr.Hex(),
		BalanceWei:     final,
		ValueAtRiskUSD: p.calc.CalculateProfit(big.NewInt(0), final).ProfitUSD,
		Profit:         profit,
		Threshold:      economic.ValidateThreshold(profit, minProfitUSD),
	}, nil
}
