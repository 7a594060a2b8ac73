// Package extract turns free-form chat text into structured trading tokens:
// a market extraction result and an optional set of explicit modifiers.
// Both extractors are pure functions of the text; they carry no session
// state and never guess defaults.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/blossomlabs/intent-trader/internal/config"
)

// MarketResult is the outcome of market extraction: zero, one, or many
// canonical symbols. Callers must treat None and Ambiguous as hard stops.
type MarketResult struct {
	Symbols []string // sorted canonical symbols
}

func (r MarketResult) None() bool      { return len(r.Symbols) == 0 }
func (r MarketResult) Ambiguous() bool { return len(r.Symbols) > 1 }

// Single returns the resolved symbol when exactly one market matched.
func (r MarketResult) Single() (string, bool) {
	if len(r.Symbols) == 1 {
		return r.Symbols[0], true
	}
	return "", false
}

// MarketTable maps aliases and tickers onto the supported market set.
type MarketTable struct {
	aliases map[string]string // lowercased alias -> canonical symbol
	classes map[string]string // canonical symbol -> instrument class
	symbols []string          // supported symbols, listed order
}

func NewMarketTable(markets []config.Market) *MarketTable {
	t := &MarketTable{
		aliases: make(map[string]string),
		classes: make(map[string]string),
	}
	for _, m := range markets {
		t.symbols = append(t.symbols, m.Symbol)
		t.classes[m.Symbol] = m.Class
		t.aliases[strings.ToLower(m.Symbol)] = m.Symbol
		for _, a := range m.Aliases {
			t.aliases[strings.ToLower(a)] = m.Symbol
		}
	}
	return t
}

// Supported returns the supported symbols in configuration order.
func (t *MarketTable) Supported() []string {
	out := make([]string, len(t.symbols))
	copy(out, t.symbols)
	return out
}

// Class returns the instrument class for a canonical symbol.
func (t *MarketTable) Class(symbol string) string {
	return t.classes[symbol]
}

var (
	sideVerbs  = map[string]bool{"long": true, "short": true, "buy": true, "sell": true}
	tradeVerbs = map[string]bool{
		"open": true, "long": true, "short": true, "buy": true, "sell": true,
		"enter": true, "start": true, "new": true,
	}
	prepositions = map[string]bool{"for": true, "on": true, "in": true}
	perpSuffixes = map[string]bool{"perp": true, "perps": true, "perpetual": true, "perpetuals": true}

	nonToken = regexp.MustCompile(`[^a-z0-9$%.-]+`)
)

const verbWindow = 6 // tokens between a trade verb and a bare ticker

func tokenize(text string) []string {
	cleaned := nonToken.ReplaceAllString(strings.ToLower(text), " ")
	return strings.Fields(cleaned)
}

// resolveAt resolves the alias starting at token i, preferring two-token
// aliases ("rate cut") over single tokens. Returns the canonical symbol and
// the number of tokens consumed.
func (t *MarketTable) resolveAt(toks []string, i int) (string, int) {
	if i+1 < len(toks) {
		if sym, ok := t.aliases[toks[i]+" "+toks[i+1]]; ok {
			return sym, 2
		}
	}
	if sym, ok := t.aliases[strings.Trim(toks[i], ".$")]; ok {
		return sym, 1
	}
	return "", 0
}

// Market applies the extraction rules in priority order and unions the
// candidates. It never falls back to a default symbol: an empty result means
// the caller has to ask.
func (t *MarketTable) Market(text string) MarketResult {
	toks := tokenize(text)
	set := map[string]bool{}

	// rule 1: "<side> <SYMBOL>" adjacency, with optional perp qualifier
	for i, tok := range toks {
		if !sideVerbs[tok] || i+1 >= len(toks) {
			continue
		}
		if sym, n := t.resolveAt(toks, i+1); n > 0 {
			set[sym] = true
		}
	}

	// rule 2: "for/on/in <SYMBOL>"
	for i, tok := range toks {
		if !prepositions[tok] || i+1 >= len(toks) {
			continue
		}
		if sym, n := t.resolveAt(toks, i+1); n > 0 {
			set[sym] = true
		}
	}

	// rule 3: "<SYMBOL> perp"
	for i := range toks {
		sym, n := t.resolveAt(toks, i)
		if n == 0 || i+n >= len(toks) {
			continue
		}
		if perpSuffixes[toks[i+n]] {
			set[sym] = true
		}
	}

	// rule 4: bare ticker within a small window of a trade verb; only active
	// when the text contains a trade verb at all
	verbIdx := -1
	for i, tok := range toks {
		if tradeVerbs[tok] {
			verbIdx = i
			break
		}
	}
	if verbIdx >= 0 {
		for i, tok := range toks {
			if sym, ok := t.aliases[strings.Trim(tok, ".$")]; ok {
				if abs(i-verbIdx) <= verbWindow {
					set[sym] = true
				}
			}
		}
	}

	// rule 5: fallback alias match anywhere, only when nothing else hit
	if len(set) == 0 {
		for i := range toks {
			if sym, n := t.resolveAt(toks, i); n > 0 {
				set[sym] = true
			}
		}
	}

	if len(set) == 0 {
		return MarketResult{}
	}
	syms := make([]string, 0, len(set))
	for s := range set {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return MarketResult{Symbols: syms}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
