package economic

import (
	"fmt"
	"iter"
	"math/big"
	"regexp"
	"strings"
)

// Matcher yields price candidates for one pattern family.
type Matcher interface {
	Name() string
	Match(source string) iter.Seq[PriceRecord]
}

// assignMatcher matches `<ident> = <digits>` idioms, optionally with an
// exponent group (`base * 10**exp` or `base e exp`).
type assignMatcher struct {
	pattern string
	exprs   []*regexp.Regexp
}

func newAssignMatcher(pattern string, exprs ...string) *assignMatcher {
	m := &assignMatcher{pattern: pattern}
	for _, e := range exprs {
		m.exprs = append(m.exprs, regexp.MustCompile(e))
	}
	return m
}

func (m *assignMatcher) Name() string { return m.pattern }

func (m *assignMatcher) Match(source string) iter.Seq[PriceRecord] {
	return func(yield func(PriceRecord) bool) {
		for _, re := range m.exprs {
			for _, loc := range re.FindAllStringSubmatchIndex(source, -1) {
				value, ok := literalValue(source, loc)
				if !ok {
					continue
				}
				rec := PriceRecord{
					Source:   SourceContract,
					RawValue: value,
					Provenance: Provenance{
						Pattern: m.pattern,
						Line:    lineAt(source, loc[0]),
						Context: source[loc[0]:loc[1]],
					},
				}
				if !yield(rec) {
					return
				}
			}
		}
	}
}

// reserveMatcher pairs reserveA/reserveB assignments into a pool ratio.
// The last assignment of each reserve wins.
type reserveMatcher struct {
	reserveA *regexp.Regexp
	reserveB *regexp.Regexp
}

func (m *reserveMatcher) Name() string { return PatternPoolRatio }

func (m *reserveMatcher) Match(source string) iter.Seq[PriceRecord] {
	return func(yield func(PriceRecord) bool) {
		a, _, okA := lastLiteral(m.reserveA, source)
		b, lineB, okB := lastLiteral(m.reserveB, source)
		if !okA || !okB {
			return
		}

		ratio := 0.0
		if a.Sign() > 0 {
			ratio, _ = new(big.Rat).SetFrac(b, a).Float64()
		}
		yield(PriceRecord{
			Source:   SourceContract,
			ValueUSD: ratio,
			HasUSD:   true,
			Provenance: Provenance{
				Pattern: PatternPoolRatio,
				Line:    lineB,
				Context: fmt.Sprintf("reserveA=%s, reserveB=%s", a, b),
			},
		})
	}
}

func lastLiteral(re *regexp.Regexp, source string) (*big.Int, int, bool) {
	var (
		value *big.Int
		line  int
	)
	for _, loc := range re.FindAllStringSubmatchIndex(source, -1) {
		v, ok := literalValue(source, loc)
		if !ok {
			continue
		}
		value, line = v, lineAt(source, loc[0])
	}
	return value, line, value != nil
}

// literalValue evaluates the first one or two capture groups of a match as
// base or base*10^exp.
func literalValue(source string, loc []int) (*big.Int, bool) {
	if len(loc) < 4 || loc[2] < 0 {
		return nil, false
	}
	base, ok := new(big.Int).SetString(source[loc[2]:loc[3]], 10)
	if !ok {
		return nil, false
	}
	if len(loc) < 6 || loc[4] < 0 {
		return base, true
	}
	exp, ok := new(big.Int).SetString(source[loc[4]:loc[5]], 10)
	if !ok || exp.BitLen() > 16 {
		return nil, false
	}
	scale := new(big.Int).Exp(big.NewInt(10), exp, nil)
	return base.Mul(base, scale), true
}

func lineAt(source string, offset int) int {
	return strings.Count(source[:offset], "\n") + 1
}

// Extractor applies its matchers in order. Families run in the order
// hardcoded price, sale price, pool ratio.
type Extractor struct {
	matchers []Matcher
}

func NewExtractor(matchers ...Matcher) *Extractor {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Extractor{matchers: matchers}
}

func DefaultMatchers() []Matcher {
	return []Matcher{
		newAssignMatcher(PatternHardcodedPrice,
			`(?i)price\s*=\s*(\d+)\s*\*\s*10\*\*(\d+)`,
			`(?i)price\s*=\s*(\d+)e(\d+)`,
			`(?i)rate\s*=\s*(\d+)`,
			`(?i)exchangeRate\s*=\s*(\d+)`,
		),
		newAssignMatcher(PatternSalePrice,
			`(?i)tokenPrice\s*=\s*(\d+)`,
			`(?i)salePrice\s*=\s*(\d+)`,
			`(?i)buyPrice\s*=\s*(\d+)`,
			`(?i)sellPrice\s*=\s*(\d+)`,
		),
		&reserveMatcher{
			reserveA: regexp.MustCompile(`(?i)reserveA\s*=\s*(\d+)`),
			reserveB: regexp.MustCompile(`(?i)reserveB\s*=\s*(\d+)`),
		},
	}
}

// Scan lazily yields every price candidate in source. The sequence can be
// ranged over more than once.
func (e *Extractor) Scan(source string) iter.Seq[PriceRecord] {
	return func(yield func(PriceRecord) bool) {
		for _, m := range e.matchers {
			for rec := range m.Match(source) {
				if !yield(rec) {
					return
				}
			}
		}
	}
}

func (e *Extractor) Extract(source string) []PriceRecord {
	var out []PriceRecord
	for rec := range e.Scan(source) {
		out = append(out, rec)
	}
	return out
}
