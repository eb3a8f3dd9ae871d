package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/VectorBits/econaudit/src/internal/economic"
	"github.com/VectorBits/econaudit/src/internal/explorer"
	"github.com/VectorBits/econaudit/src/internal/logger"
)

// QuoteSource fetches live DEX quotes; *dex.Fetcher implements it.
type QuoteSource interface {
	GetPrices(ctx context.Context, token string) ([]economic.MarketQuote, error)
}

// LoadQuotes reads market quotes from a JSON file holding either a list of
// quotes or an object with a "quotes" list.
func LoadQuotes(path string) ([]economic.MarketQuote, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prices file: %w", err)
	}

	var quotes []economic.MarketQuote
	trimmed := strings.TrimSpace(string(bs))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(bs, &quotes)
	} else {
		var wrapper struct {
			Quotes []economic.MarketQuote `json:"quotes"`
		}
		err = json.Unmarshal(bs, &wrapper)
		quotes = wrapper.Quotes
	}
	if err != nil {
		return nil, fmt.Errorf("parse prices file %s: %w", path, err)
	}

	out := quotes[:0]
	for _, q := range quotes {
		if q.PriceUSD <= 0 {
			logger.Warn("Ignoring non-positive quote from %q in %s", q.DEX, path)
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// CollectQuotes merges quotes from pricesFile with live quotes for token.
// Either input may be empty; a failed live fetch is logged and skipped.
func CollectQuotes(ctx context.Context, pricesFile, token string, src QuoteSource) ([]economic.MarketQuote, error) {
	var quotes []economic.MarketQuote
	if pricesFile != "" {
		loaded, err := LoadQuotes(pricesFile)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, loaded...)
	}

	if token != "" {
		if err := explorer.ValidateAddress(token); err != nil {
			return nil, fmt.Errorf("invalid token: %w", err)
		}
		if src == nil {
			return nil, fmt.Errorf("no DEX quote source configured for token %s", token)
		}
		live, err := src.GetPrices(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Live DEX quotes for %s unavailable: %v", token, err)
		}
		quotes = append(quotes, live...)
	}

	if len(quotes) == 0 {
		logger.Warn("No market quotes available; price discrepancy checks will be skipped")
	}
	return quotes, nil
}
