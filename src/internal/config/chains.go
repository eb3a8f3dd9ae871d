package config

import "strings"

type Token struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

type DEXFactory struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	// Kind is "v2" (getPair/getReserves) or "v3" (getPool/slot0).
	Kind string `yaml:"kind"`
}

type ChainConfig struct {
	Name           string       `yaml:"name"`
	ChainID        int          `yaml:"chain_id"`
	RPCURLs        []string     `yaml:"rpc_urls"`
	Explorer       Explorer     `yaml:"explorer"`
	NativeSymbol   string       `yaml:"native_symbol"`
	NativePriceUSD float64      `yaml:"native_price_usd"`
	Factories      []DEXFactory `yaml:"factories"`
	Stablecoins    []Token      `yaml:"stablecoins"`
	WrappedNative  string       `yaml:"wrapped_native"`
}

type Explorer struct {
	APIKey  string   `yaml:"api_key"`
	APIKeys []string `yaml:"api_keys"`
	BaseURL string   `yaml:"base_url"`
}

const etherscanV2 = "https://api.etherscan.io/v2/api"

var chainAliases = map[string]string{
	"eth":     "ethereum",
	"mainnet": "ethereum",
	"bnb":     "bsc",
	"matic":   "polygon",
	"arb":     "arbitrum",
	"op":      "optimism",
}

// CanonicalChain resolves short chain names (eth, bnb, ...) to config keys.
func CanonicalChain(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := chainAliases[name]; ok {
		return alias
	}
	return name
}

// DefaultChains returns a fresh copy of the built-in chain tables.
func DefaultChains() map[string]ChainConfig {
	return map[string]ChainConfig{
		"ethereum": {
			Name:           "ethereum",
			ChainID:        1,
			RPCURLs:        []string{"https://eth.llamarpc.com"},
			Explorer:       Explorer{BaseURL: etherscanV2},
			NativeSymbol:   "ETH",
			NativePriceUSD: 2000,
			Factories: []DEXFactory{
				{Name: "uniswap_v2", Address: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", Kind: "v2"},
				{Name: "uniswap_v3", Address: "0x1F98431c8aD98523631AE4a59f267346ea31F984", Kind: "v3"},
			},
			Stablecoins: []Token{
				{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
				{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
				{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
			},
			WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		},
		"bsc": {
			Name:           "bsc",
			ChainID:        56,
			RPCURLs:        []string{"https://bsc-dataseed.binance.org"},
			Explorer:       Explorer{BaseURL: etherscanV2},
			NativeSymbol:   "BNB",
			NativePriceUSD: 300,
			Factories: []DEXFactory{
				{Name: "pancakeswap_v2", Address: "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73", Kind: "v2"},
				{Name: "pancakeswap_v3", Address: "0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865", Kind: "v3"},
			},
			Stablecoins: []Token{
				{Symbol: "USDT", Address: "0x55d398326f99059fF775485246999027B3197955"},
				{Symbol: "USDC", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"},
				{Symbol: "BUSD", Address: "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"},
			},
			WrappedNative: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
		},
		"polygon": {
			Name:           "polygon",
			ChainID:        137,
			RPCURLs:        []string{"https://polygon-rpc.com"},
			Explorer:       Explorer{BaseURL: etherscanV2},
			NativeSymbol:   "MATIC",
			NativePriceUSD: 0.8,
			Factories: []DEXFactory{
				{Name: "quickswap", Address: "0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32", Kind: "v2"},
			},
			WrappedNative: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
		},
		"arbitrum": {
			Name:           "arbitrum",
			ChainID:        42161,
			RPCURLs:        []string{"https://arb1.arbitrum.io/rpc"},
			Explorer:       Explorer{BaseURL: etherscanV2},
			NativeSymbol:   "ETH",
			NativePriceUSD: 2000,
		},
		"optimism": {
			Name:           "optimism",
			ChainID:        10,
			RPCURLs:        []string{"https://mainnet.optimism.io"},
			Explorer:       Explorer{BaseURL: etherscanV2},
			NativeSymbol:   "ETH",
			NativePriceUSD: 2000,
		},
	}
}

// mergeChain fills zero fields of c from def.
func mergeChain(c, def ChainConfig) ChainConfig {
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.ChainID == 0 {
		c.ChainID = def.ChainID
	}
	if len(c.RPCURLs) == 0 {
		c.RPCURLs = def.RPCURLs
	}
	if c.Explorer.BaseURL == "" {
		c.Explorer.BaseURL = def.Explorer.BaseURL
	}
	if c.NativeSymbol == "" {
		c.NativeSymbol = def.NativeSymbol
	}
	if c.NativePriceUSD == 0 {
		c.NativePriceUSD = def.NativePriceUSD
	}
	if len(c.Factories) == 0 {
		c.Factories = def.Factories
	}
	if len(c.Stablecoins) == 0 {
		c.Stablecoins = def.Stablecoins
	}
	if c.WrappedNative == "" {
		c.WrappedNative = def.WrappedNative
	}
	return c
}
