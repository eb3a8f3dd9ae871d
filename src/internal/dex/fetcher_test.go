package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VectorBits/econaudit/src/internal/config"
	"github.com/VectorBits/econaudit/src/internal/economic"
)

var (
	tokenT = common.HexToAddress("0x1000000000000000000000000000000000000001")
	usdt   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	usdc   = common.HexToAddress("0x3000000000000000000000000000000000000003")
	weth   = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

type pairKey [2]common.Address

func keyOf(a, b common.Address) pairKey {
	if a.Hex() > b.Hex() {
		a, b = b, a
	}
	return pairKey{a, b}
}

type fakeReader struct {
	pairs    map[pairKey]common.Address
	reserves map[common.Address]Reserves
	pools    map[pairKey]Slot0
	decimals map[common.Address]uint8
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		pairs:    make(map[pairKey]common.Address),
		reserves: make(map[common.Address]Reserves),
		pools:    make(map[pairKey]Slot0),
		decimals: make(map[common.Address]uint8),
	}
}

func (f *fakeReader) addPair(a, b common.Address, ra, rb *big.Int) {
	addr := common.BigToAddress(big.NewInt(int64(len(f.pairs) + 100)))
	f.pairs[keyOf(a, b)] = addr
	f.reserves[addr] = Reserves{Token0: a, Token1: b, Reserve0: ra, Reserve1: rb}
}

func (f *fakeReader) GetPair(_ context.Context, _, a, b common.Address) (common.Address, error) {
	addr, ok := f.pairs[keyOf(a, b)]
	if !ok {
		return common.Address{}, ErrPairNotFound
	}
	return addr, nil
}

func (f *fakeReader) GetReserves(_ context.Context, pair common.Address) (Reserves, error) {
	return f.reserves[pair], nil
}

func (f *fakeReader) GetPool(_ context.Context, _, a, b common.Address, fee uint32) (common.Address, error) {
	if _, ok := f.pools[keyOf(a, b)]; !ok || fee != 3000 {
		return common.Address{}, ErrPairNotFound
	}
	k := keyOf(a, b)
	return common.BytesToAddress(append(k[0].Bytes()[:10], k[1].Bytes()[:10]...)), nil
}

func (f *fakeReader) GetSlot0(_ context.Context, pool common.Address) (Slot0, error) {
	for k, s := range f.pools {
		if common.BytesToAddress(append(k[0].Bytes()[:10], k[1].Bytes()[:10]...)) == pool {
			return s, nil
		}
	}
	return Slot0{}, ErrPairNotFound
}

func (f *fakeReader) Decimals(_ context.Context, token common.Address) (uint8, error) {
	if d, ok := f.decimals[token]; ok {
		return d, nil
	}
	return 0, errors.New("no decimals")
}

func units(n int64, decimals int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil))
}

func testChain(kind string) config.ChainConfig {
	return config.ChainConfig{
		Name:          "testnet",
		Factories:     []config.DEXFactory{{Name: "swap", Address: "0x9000000000000000000000000000000000000009", Kind: kind}},
		Stablecoins:   []config.Token{{Symbol: "USDT", Address: usdt.Hex()}, {Symbol: "USDC", Address: usdc.Hex()}},
		WrappedNative: weth.Hex(),
	}
}

func TestGetTokenPriceV2(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(r *fakeReader)
		want      float64
		pairToken string
	}{
		{
			name: "direct stable pair",
			setup: func(r *fakeReader) {
				r.addPair(tokenT, usdt, units(1000, 18), units(2000, 18))
			},
			want:      2,
			pairToken: "USDT",
		},
		{
			name: "token is token1",
			setup: func(r *fakeReader) {
				r.addPair(usdt, tokenT, units(500, 18), units(1000, 18))
			},
			want:      0.5,
			pairToken: "USDT",
		},
		{
			name: "six decimal stablecoin",
			setup: func(r *fakeReader) {
				r.decimals[usdc] = 6
				r.addPair(tokenT, usdc, units(1000, 18), units(3000, 6))
			},
			want:      3,
			pairToken: "USDC",
		},
		{
			name: "routed through wrapped native",
			setup: func(r *fakeReader) {
				r.addPair(tokenT, weth, units(100, 18), units(1, 18))
				r.addPair(weth, usdt, units(1, 18), units(2000, 18))
			},
			want:      20,
			pairToken: "USDT (via native)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeReader()
			tt.setup(r)
			f := NewFetcher(testChain(KindV2), r)

			q, err := f.GetTokenPrice(context.Background(), "swap", tokenT.Hex())
			if err != nil {
				t.Fatalf("GetTokenPrice: %v", err)
			}
			if q.PriceUSD != tt.want || q.PairToken != tt.pairToken || q.DEX != "swap" {
				t.Errorf("quote = %+v, want price %v via %s", q, tt.want, tt.pairToken)
			}
		})
	}
}

func TestGetTokenPriceV3(t *testing.T) {
	sqrt2 := new(big.Int).Lsh(big.NewInt(2), 96)
	tests := []struct {
		name string
		slot Slot0
		want float64
	}{
		{"token is token0", Slot0{Token0: tokenT, Token1: usdt, SqrtPriceX96: sqrt2}, 4},
		{"token is token1", Slot0{Token0: usdt, Token1: tokenT, SqrtPriceX96: sqrt2}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeReader()
			r.pools[keyOf(tokenT, usdt)] = tt.slot
			f := NewFetcher(testChain(KindV3), r)

			q, err := f.GetTokenPrice(context.Background(), "swap", tokenT.Hex())
			if err != nil {
				t.Fatalf("GetTokenPrice: %v", err)
			}
			if q.PriceUSD != tt.want {
				t.Errorf("price = %v, want %v", q.PriceUSD, tt.want)
			}
		})
	}
}

func TestGetTokenPriceErrors(t *testing.T) {
	f := NewFetcher(testChain(KindV2), newFakeReader())

	if _, err := f.GetTokenPrice(context.Background(), "swap", tokenT.Hex()); !errors.Is(err, ErrPairNotFound) {
		t.Errorf("err = %v, want ErrPairNotFound", err)
	}
	if _, err := f.GetTokenPrice(context.Background(), "swap", "not-an-address"); err == nil {
		t.Error("expected invalid address error")
	}
	if _, err := f.GetTokenPrice(context.Background(), "unknown", tokenT.Hex()); err == nil {
		t.Error("expected unsupported DEX error")
	}
}

type memCache struct {
	data map[string][]economic.MarketQuote
	sets int
}

func (m *memCache) Get(_ context.Context, key string) ([]economic.MarketQuote, bool, error) {
	q, ok := m.data[key]
	return q, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, quotes []economic.MarketQuote) error {
	m.data[key] = quotes
	m.sets++
	return nil
}

func TestGetPricesAcrossFactoriesWithCache(t *testing.T) {
	chain := testChain(KindV2)
	chain.Factories = append(chain.Factories, config.DEXFactory{Name: "other", Address: "0x8000000000000000000000000000000000000008", Kind: KindV2})

	r := newFakeReader()
	r.addPair(tokenT, usdt, units(1000, 18), units(2000, 18))
	cache := &memCache{data: make(map[string][]economic.MarketQuote)}
	f := NewFetcher(chain, r, WithCache(cache))

	quotes, err := f.GetPrices(context.Background(), tokenT.Hex())
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if len(quotes) != 2 || quotes[0].DEX != "swap" || quotes[1].DEX != "other" {
		t.Fatalf("quotes = %+v", quotes)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}

	// A second call is served from the cache even after the pair disappears.
	delete(r.pairs, keyOf(tokenT, usdt))
	again, err := f.GetPrices(context.Background(), tokenT.Hex())
	if err != nil || len(again) != 2 {
		t.Errorf("cached quotes = %+v, err = %v", again, err)
	}
}

func TestCacheKeyIsCaseInsensitive(t *testing.T) {
	if cacheKey("BSC", "0xABC") != cacheKey("bsc", "0xabc") {
		t.Error("cache keys differ by case")
	}
}
