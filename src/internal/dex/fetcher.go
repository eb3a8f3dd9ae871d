package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/VectorBits/econaudit/src/internal/config"
	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/logger"
)

const (
	KindV2 = "v2"
	KindV3 = "v3"

	defaultDecimals = 18
	pricePrecision  = 36
)

// v3FeeTiers are tried in order of typical liquidity.
var v3FeeTiers = []uint32{3000, 500, 10000, 100}

var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// Quote is a USD price for one token on one DEX.
type Quote struct {
	PriceUSD     float64 `json:"price_usd"`
	DEX          string  `json:"dex"`
	PairToken    string  `json:"pair_token"`
	Chain        string  `json:"chain"`
	TokenAddress string  `json:"token_address"`
	Route        string  `json:"route,omitempty"`
}

func (q Quote) Market() economic.MarketQuote {
	return economic.MarketQuote{PriceUSD: q.PriceUSD, DEX: q.DEX, TokenAddress: q.TokenAddress}
}

type Option func(*Fetcher)

// WithCache stores GetPrices results in c.
func WithCache(c QuoteCache) Option {
	return func(f *Fetcher) { f.cache = c }
}

// Fetcher prices tokens from the DEX factories of one chain.
type Fetcher struct {
	chain  config.ChainConfig
	reader PairReader
	cache  QuoteCache

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

func NewFetcher(chain config.ChainConfig, reader PairReader, opts ...Option) *Fetcher {
	f := &Fetcher{
		chain:    chain,
		reader:   reader,
		decimals: make(map[common.Address]uint8),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) factory(name string) (config.DEXFactory, error) {
	for _, fac := range f.chain.Factories {
		if strings.EqualFold(fac.Name, name) {
			return fac, nil
		}
	}
	return config.DEXFactory{}, fmt.Errorf("DEX %s not supported on %s", name, f.chain.Name)
}

func (f *Fetcher) tokenDecimals(ctx context.Context, token common.Address) int32 {
	f.mu.Lock()
	dec, ok := f.decimals[token]
	f.mu.Unlock()
	if ok {
		return int32(dec)
	}

	dec, err := f.reader.Decimals(ctx, token)
	if err != nil {
		logger.Debug("decimals() failed for %s, assuming 18: %v", token.Hex(), err)
		dec = defaultDecimals
	}
	f.mu.Lock()
	f.decimals[token] = dec
	f.mu.Unlock()
	return int32(dec)
}

// PairPrice returns the price of tokenA denominated in tokenB, adjusted for
// both tokens' decimals.
func (f *Fetcher) PairPrice(ctx context.Context, fac config.DEXFactory, tokenA, tokenB common.Address) (decimal.Decimal, error) {
	factory := common.HexToAddress(fac.Address)
	switch strings.ToLower(fac.Kind) {
	case KindV3:
		return f.v3Price(ctx, factory, tokenA, tokenB)
	case KindV2, "":
		return f.v2Price(ctx, factory, tokenA, tokenB)
	default:
		return decimal.Zero, fmt.Errorf("unknown DEX kind %q for %s", fac.Kind, fac.Name)
	}
}

func (f *Fetcher) v2Price(ctx context.Context, factory, tokenA, tokenB common.Address) (decimal.Decimal, error) {
	pair, err := f.reader.GetPair(ctx, factory, tokenA, tokenB)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := f.reader.GetReserves(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}

	reserveA, reserveB := res.Reserve0, res.Reserve1
	if res.Token0 != tokenA {
		reserveA, reserveB = res.Reserve1, res.Reserve0
	}
	if reserveA == nil || reserveB == nil || reserveA.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: empty reserves in %s", ErrPairNotFound, pair.Hex())
	}

	a := decimal.NewFromBigInt(reserveA, -f.tokenDecimals(ctx, tokenA))
	b := decimal.NewFromBigInt(reserveB, -f.tokenDecimals(ctx, tokenB))
	return b.DivRound(a, pricePrecision), nil
}

func (f *Fetcher) v3Price(ctx context.Context, factory, tokenA, tokenB common.Address) (decimal.Decimal, error) {
	var lastErr error = ErrPairNotFound
	for _, fee := range v3FeeTiers {
		pool, err := f.reader.GetPool(ctx, factory, tokenA, tokenB, fee)
		if err != nil {
			if !errors.Is(err, ErrPairNotFound) {
				lastErr = err
			}
			continue
		}
		slot, err := f.reader.GetSlot0(ctx, pool)
		if err != nil {
			lastErr = err
			continue
		}
		if slot.SqrtPriceX96 == nil || slot.SqrtPriceX96.Sign() <= 0 {
			continue
		}

		// token1 per token0 in raw units, then shifted by decimals.
		sqrtP := decimal.NewFromBigInt(slot.SqrtPriceX96, 0)
		raw := sqrtP.Mul(sqrtP).DivRound(q192, pricePrecision)
		dec0 := f.tokenDecimals(ctx, slot.Token0)
		dec1 := f.tokenDecimals(ctx, slot.Token1)
		price := raw.Shift(dec0 - dec1)
		if price.IsZero() {
			continue
		}
		if slot.Token0 == tokenA {
			return price, nil
		}
		return decimal.NewFromInt(1).DivRound(price, pricePrecision), nil
	}
	return decimal.Zero, lastErr
}

// GetTokenPrice quotes token in USD on one DEX: directly against each
// configured stablecoin, else through the wrapped native token.
func (f *Fetcher) GetTokenPrice(ctx context.Context, dexName, token string) (*Quote, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address: %s", token)
	}
	fac, err := f.factory(dexName)
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token)

	for _, stable := range f.chain.Stablecoins {
		price, err := f.PairPrice(ctx, fac, tokenAddr, common.HexToAddress(stable.Address))
		if err != nil {
			logger.Debug("%s: no %s pair for %s: %v", fac.Name, stable.Symbol, token, err)
			continue
		}
		if price.IsPositive() {
			return &Quote{
				PriceUSD:     price.InexactFloat64(),
				DEX:          fac.Name,
				PairToken:    stable.Symbol,
				Chain:        f.chain.Name,
				TokenAddress: tokenAddr.Hex(),
			}, nil
		}
	}

	q, err := f.viaNative(ctx, fac, tokenAddr)
	if err == nil {
		return q, nil
	}
	logger.Debug("%s: native route failed for %s: %v", fac.Name, token, err)
	return nil, fmt.Errorf("%w: %s on %s", ErrPairNotFound, token, fac.Name)
}

func (f *Fetcher) viaNative(ctx context.Context, fac config.DEXFactory, token common.Address) (*Quote, error) {
	if f.chain.WrappedNative == "" {
		return nil, errors.New("no wrapped native token configured")
	}
	wnative := common.HexToAddress(f.chain.WrappedNative)
	if token == wnative {
		return nil, errors.New("token is the wrapped native token")
	}

	inNative, err := f.PairPrice(ctx, fac, token, wnative)
	if err != nil {
		return nil, err
	}
	if !inNative.IsPositive() {
		return nil, ErrPairNotFound
	}

	for _, stable := range f.chain.Stablecoins {
		stableAddr := common.HexToAddress(stable.Address)
		nativeUSD, err := f.PairPrice(ctx, fac, wnative, stableAddr)
		if err != nil || !nativeUSD.IsPositive() {
			continue
		}
		return &Quote{
			PriceUSD:     inNative.Mul(nativeUSD).InexactFloat64(),
			DEX:          fac.Name,
			PairToken:    stable.Symbol + " (via native)",
			Chain:        f.chain.Name,
			TokenAddress: token.Hex(),
			Route:        fmt.Sprintf("%s -> %s -> %s", token.Hex(), wnative.Hex(), stableAddr.Hex()),
		}, nil
	}
	return nil, ErrPairNotFound
}

// GetPrices quotes token on every configured DEX, skipping DEXes without a
// usable pair. Results are cached when a cache is configured.
func (f *Fetcher) GetPrices(ctx context.Context, token string) ([]economic.MarketQuote, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address: %s", token)
	}
	key := cacheKey(f.chain.Name, token)
	if f.cache != nil {
		if quotes, ok, err := f.cache.Get(ctx, key); err != nil {
			logger.Warn("Quote cache read failed: %v", err)
		} else if ok {
			logger.Debug("Quote cache hit for %s", key)
			return quotes, nil
		}
	}

	var quotes []economic.MarketQuote
	for _, fac := range f.chain.Factories {
		if err := ctx.Err(); err != nil {
			return quotes, err
		}
		q, err := f.GetTokenPrice(ctx, fac.Name, token)
		if err != nil {
			logger.Debug("No price from %s: %v", fac.Name, err)
			continue
		}
		logger.Info("💱 %s: $%.6f (%s)", q.DEX, q.PriceUSD, q.PairToken)
		quotes = append(quotes, q.Market())
	}

	if f.cache != nil && len(quotes) > 0 {
		if err := f.cache.Set(ctx, key, quotes); err != nil {
			logger.Warn("Quote cache write failed: %v", err)
		}
	}
	return quotes, nil
}
