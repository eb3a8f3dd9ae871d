package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrPairNotFound means the factory returned the zero address for a pair.
var ErrPairNotFound = errors.New("pair not found")

const (
	factoryV2ABI = `[{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"type":"function"}]`
	pairV2ABI    = `[
		{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"type":"function"},
		{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"type":"function"},
		{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"type":"function"}]`
	factoryV3ABI = `[{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"pool","type":"address"}],"stateMutability":"view","type":"function"}]`
	poolV3ABI    = `[
		{"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	erc20ABI = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}]`
)

var (
	factoryV2 = mustABI(factoryV2ABI)
	pairV2    = mustABI(pairV2ABI)
	factoryV3 = mustABI(factoryV3ABI)
	poolV3    = mustABI(poolV3ABI)
	erc20     = mustABI(erc20ABI)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("dex: bad ABI: %v", err))
	}
	return parsed
}

// Reserves are a V2 pair's balances in token0/token1 order.
type Reserves struct {
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Slot0 is the part of a V3 pool's state needed for a spot price.
type Slot0 struct {
	Token0       common.Address
	Token1       common.Address
	SqrtPriceX96 *big.Int
}

// PairReader abstracts the on-chain reads behind a price quote.
type PairReader interface {
	GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	GetReserves(ctx context.Context, pair common.Address) (Reserves, error)
	GetPool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
	GetSlot0(ctx context.Context, pool common.Address) (Slot0, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// EthReader implements PairReader with eth_call against any
// ethereum.ContractCaller, normally an *ethclient.Client.
type EthReader struct {
	caller  ethereum.ContractCaller
	timeout time.Duration
}

func NewEthReader(caller ethereum.ContractCaller) *EthReader {
	return &EthReader{caller: caller, timeout: 10 * time.Second}
}

func (r *EthReader) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	out, err := contract.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no data", method)
	}
	return out, nil
}

func (r *EthReader) address(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) (common.Address, error) {
	out, err := r.call(ctx, contract, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected type %T", method, out[0])
	}
	return addr, nil
}

func (r *EthReader) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	pair, err := r.address(ctx, factoryV2, factory, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	if pair == (common.Address{}) {
		return common.Address{}, ErrPairNotFound
	}
	return pair, nil
}

func (r *EthReader) GetReserves(ctx context.Context, pair common.Address) (Reserves, error) {
	out, err := r.call(ctx, pairV2, pair, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	if len(out) < 2 {
		return Reserves{}, fmt.Errorf("getReserves: short output")
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return Reserves{}, fmt.Errorf("getReserves: unexpected types %T, %T", out[0], out[1])
	}
	t0, err := r.address(ctx, pairV2, pair, "token0")
	if err != nil {
		return Reserves{}, err
	}
	t1, err := r.address(ctx, pairV2, pair, "token1")
	if err != nil {
		return Reserves{}, err
	}
	return Reserves{Token0: t0, Token1: t1, Reserve0: r0, Reserve1: r1}, nil
}

func (r *EthReader) GetPool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	pool, err := r.address(ctx, factoryV3, factory, "getPool", tokenA, tokenB, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	if pool == (common.Address{}) {
		return common.Address{}, ErrPairNotFound
	}
	return pool, nil
}

func (r *EthReader) GetSlot0(ctx context.Context, pool common.Address) (Slot0, error) {
	out, err := r.call(ctx, poolV3, pool, "slot0")
	if err != nil {
		return Slot0{}, err
	}
	sqrtPrice, ok := out[0].(*big.Int)
	if !ok {
		return Slot0{}, fmt.Errorf("slot0: unexpected type %T", out[0])
	}
	t0, err := r.address(ctx, poolV3, pool, "token0")
	if err != nil {
		return Slot0{}, err
	}
	t1, err := r.address(ctx, poolV3, pool, "token1")
	if err != nil {
		return Slot0{}, err
	}
	return Slot0{Token0: t0, Token1: t1, SqrtPriceX96: sqrtPrice}, nil
}

func (r *EthReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, erc20, token, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", out[0])
	}
	return dec, nil
}
