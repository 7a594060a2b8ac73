package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Modifiers holds the explicit sizing/side tokens found in one message.
// Nil fields mean "not mentioned"; SizeUSD and RiskPct are mutually
// exclusive per message.
type Modifiers struct {
	SizeUSD  *float64
	RiskPct  *float64
	Leverage *float64
	SideFlip string // "", "long", "short", "hedge"
}

// HasAny reports whether the message carried at least one explicit modifier.
func (m Modifiers) HasAny() bool {
	return m.SizeUSD != nil || m.RiskPct != nil || m.Leverage != nil || m.SideFlip != ""
}

const minSizeUSD = 100 // below this a bare number is treated as prose, not size

var (
	leverageRe = regexp.MustCompile(`(?i)\b(\d{1,3}(?:\.\d+)?)\s*x\b(?:\s*(?:lev|leverage))?`)
	percentRe  = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	riskVocab  = regexp.MustCompile(`(?i)\b(risk|per[- ]?trade|exposure)\b`)
	dollarRe   = regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)\s*([kK])?`)
	bareSizeRe = regexp.MustCompile(`(?i)\b(\d[\d,]*(?:\.\d+)?)\s*([kK])?\b`)
	flipVerbRe = regexp.MustCompile(`(?i)\b(flip|make it|instead|switch(?: it)?(?: to)?)\b`)
	sideWordRe = regexp.MustCompile(`(?i)\b(short|long|hedge)\b`)
)

// ParseModifiers extracts explicit size/risk/leverage/side tokens. It is
// deliberately strict: every field needs its own explicit vocabulary, so
// descriptive prose does not read as a command.
func ParseModifiers(text string) Modifiers {
	var m Modifiers
	rest := text

	// leverage first, so "10x" is never mistaken for a bare size
	if g := leverageRe.FindStringSubmatchIndex(rest); g != nil {
		if v, err := strconv.ParseFloat(rest[g[2]:g[3]], 64); err == nil && v >= 1 {
			if v > 20 {
				v = 20
			}
			m.Leverage = &v
			rest = rest[:g[0]] + rest[g[1]:]
		}
	}

	// a % token near a number means risk, never size, and only with
	// explicit risk vocabulary
	if g := percentRe.FindStringSubmatchIndex(rest); g != nil && riskVocab.MatchString(rest) {
		if v, err := strconv.ParseFloat(rest[g[2]:g[3]], 64); err == nil && v > 0 && v <= 100 {
			m.RiskPct = &v
			rest = rest[:g[0]] + rest[g[1]:]
		}
	}

	if m.RiskPct == nil {
		// numbers attached to a % token are never sizes, even without
		// risk vocabulary
		if v, ok := parseSize(percentRe.ReplaceAllString(rest, " ")); ok {
			m.SizeUSD = &v
		}
	}

	if flipVerbRe.MatchString(text) {
		if g := sideWordRe.FindStringSubmatch(text); g != nil {
			m.SideFlip = strings.ToLower(g[1])
		}
	}

	return m
}

func parseSize(text string) (float64, bool) {
	// $-prefixed first: "$1,500", "$2k"
	if g := dollarRe.FindStringSubmatch(text); g != nil {
		if v, ok := parseAmount(g[1], g[2]); ok && v > 0 {
			return v, true
		}
	}
	// bare number, only above the noise threshold: "2000", "2k"
	for _, g := range bareSizeRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(g[1], g[2]); ok && v >= minSizeUSD {
			return v, true
		}
	}
	return 0, false
}

func parseAmount(num, suffix string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if suffix != "" {
		v *= 1000
	}
	return v, true
}
