// Package riskgate inspects a freshly created draft and the text that
// produced it for risk-escalation signals. It runs once, right after
// creation, and never after an update.
package riskgate

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/blossomlabs/intent-trader/internal/draft"
	"github.com/blossomlabs/intent-trader/internal/observ"
)

type Config struct {
	LeverageThreshold float64 // leverage at/above this needs confirmation
	RiskCeilingPct    float64 // per-trade risk ceiling
}

// Assessment is the gate verdict with the reasons shown to the user.
type Assessment struct {
	HighRisk bool
	Reasons  []string
}

var (
	noStopRe    = regexp.MustCompile(`(?i)\b(no|without|skip(?:ping)?( the)?)\s+(a\s+)?stop(\s*[- ]?loss)?\b`)
	allInRe     = regexp.MustCompile(`(?i)\b(entire|whole|all[- ]?in|everything|full)\b.*\b(portfolio|account|balance|stack)\b|\ball[- ]?in\b|\beverything\b`)
	leverageReq = regexp.MustCompile(`(?i)\b(\d{1,4}(?:\.\d+)?)\s*x\b`)
)

// Assess checks escalation markers. The requested leverage is read from the
// raw text as well as the draft, so a request the extractor clamped still
// trips the gate.
func Assess(text string, d *draft.Draft, cfg Config) Assessment {
	var a Assessment

	lev := d.Leverage
	if g := leverageReq.FindStringSubmatch(text); g != nil {
		if v, err := strconv.ParseFloat(g[1], 64); err == nil && v > lev {
			lev = v
		}
	}
	if cfg.LeverageThreshold > 0 && lev >= cfg.LeverageThreshold {
		a.Reasons = append(a.Reasons, fmt.Sprintf("leverage %gx is at or above the %gx confirmation threshold", lev, cfg.LeverageThreshold))
	}

	if noStopRe.MatchString(text) {
		a.Reasons = append(a.Reasons, "explicitly requested no stop loss")
	}

	if allInRe.MatchString(text) {
		a.Reasons = append(a.Reasons, "position sized against the whole portfolio")
	}

	if cfg.RiskCeilingPct > 0 && d.RiskPct > cfg.RiskCeilingPct {
		a.Reasons = append(a.Reasons, fmt.Sprintf("risk %.1f%% exceeds the %.1f%% per-trade ceiling", d.RiskPct, cfg.RiskCeilingPct))
	}

	a.HighRisk = len(a.Reasons) > 0
	if a.HighRisk {
		observ.IncCounter("high_risk_gated_total", map[string]string{"market": d.Market})
	}
	return a
}
