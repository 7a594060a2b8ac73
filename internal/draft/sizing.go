package draft

import (
	"errors"
	"math"
)

// ErrSizingUnderflow means the derived margin would be zero or negative.
var ErrSizingUnderflow = errors.New("derived margin must be positive")

// Sizing is the reconciled sizing of a draft. Exactly one of risk percent or
// margin is user-authoritative; the other is derived.
type Sizing struct {
	RiskPct     float64
	Leverage    float64
	MarginUSD   float64
	NotionalUSD float64
}

// SizingInput carries the explicit user inputs; nil means "not supplied".
type SizingInput struct {
	RiskPct   *float64
	MarginUSD *float64
	Leverage  *float64
}

// DeriveSizing reconciles risk percent and margin against the account value.
// Margin wins when both are supplied in the same message: it is the more
// concrete instruction, and risk is recomputed from it.
func DeriveSizing(in SizingInput, accountValue, defaultRiskPct, defaultLeverage float64) (Sizing, error) {
	if accountValue <= 0 {
		return Sizing{}, ErrSizingUnderflow
	}
	s := Sizing{Leverage: defaultLeverage}
	if in.Leverage != nil {
		s.Leverage = *in.Leverage
	}
	if s.Leverage < 1 {
		s.Leverage = 1
	}

	switch {
	case in.MarginUSD != nil:
		s.MarginUSD = roundCents(*in.MarginUSD)
		s.RiskPct = round1(s.MarginUSD / accountValue * 100)
	case in.RiskPct != nil:
		s.RiskPct = *in.RiskPct
		s.MarginUSD = roundCents(s.RiskPct * accountValue / 100)
	default:
		s.RiskPct = defaultRiskPct
		s.MarginUSD = roundCents(s.RiskPct * accountValue / 100)
	}

	if s.MarginUSD <= 0 {
		return Sizing{}, ErrSizingUnderflow
	}
	s.NotionalUSD = roundCents(s.MarginUSD * s.Leverage)
	return s, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
