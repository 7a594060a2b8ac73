// Package intent classifies each user message as CREATE, UPDATE, CLARIFY,
// or REJECT. The rule order here is the correctness contract: rules are
// evaluated top to bottom and the first match wins.
package intent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/blossomlabs/intent-trader/internal/draft"
	"github.com/blossomlabs/intent-trader/internal/extract"
)

type Kind string

const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindClarify Kind = "clarify"
	KindReject  Kind = "reject"
)

// Input is everything the classifier is allowed to look at. It is threaded
// in explicitly; the classifier never reads ambient session state.
type Input struct {
	Text      string
	Market    extract.MarketResult
	Mods      extract.Modifiers
	Selected  *draft.Draft   // currently selected position, nullable
	Positions []*draft.Draft // all session positions, for "the BTC position"
}

// Decision is the classified intent plus an audit reason payload.
type Decision struct {
	Kind       Kind
	Market     string     // resolved market for CREATE
	Side       draft.Side // parsed side for CREATE
	Candidates []string   // ambiguous set for CLARIFY; empty = full prompt
	TargetID   string     // draft id for UPDATE
	ReasonJSON string
}

type reason struct {
	Rule       string   `json:"rule"`
	NewTrade   bool     `json:"new_trade"`
	EditVerb   bool     `json:"edit_verb"`
	FieldToken bool     `json:"field_token"`
	Market     string   `json:"market,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Target     string   `json:"target,omitempty"`
}

var (
	newTradeRe  = regexp.MustCompile(`(?i)\b(open|enter|start|long|short|buy|sell)\b`)
	editVerbRe  = regexp.MustCompile(`(?i)\b(update|change|adjust|set|raise|lower|tighten|widen)\b`)
	fieldTokRe  = regexp.MustCompile(`(?i)\b(leverage|lev|size|risk|stop|sl|tp|take[- ]?profit|margin|notional)\b`)
	shortSideRe = regexp.MustCompile(`(?i)\b(short|sell)\b`)
)

// Classify applies the fixed-priority decision rules.
func Classify(in Input) Decision {
	r := reason{
		NewTrade:   newTradeRe.MatchString(in.Text),
		EditVerb:   editVerbRe.MatchString(in.Text),
		FieldToken: fieldTokRe.MatchString(in.Text),
	}
	single, resolved := in.Market.Single()

	// rule 1: new-trade language with a resolved market is always a new
	// position, regardless of selection; a second trade must never be
	// mis-routed into editing the first
	if r.NewTrade && resolved {
		r.Rule, r.Market = "new_trade_resolved", single
		return Decision{Kind: KindCreate, Market: single, Side: parseSide(in.Text), ReasonJSON: marshal(r)}
	}

	// rule 2: new-trade language without a resolvable market stops hard
	if r.NewTrade {
		r.Rule, r.Candidates = "new_trade_unresolved", in.Market.Symbols
		return Decision{Kind: KindClarify, Candidates: in.Market.Symbols, ReasonJSON: marshal(r)}
	}

	// rule 3: explicit edit verb + field token, if a target resolves
	if r.EditVerb && r.FieldToken {
		if resolved {
			for _, p := range in.Positions {
				if p.Market == single && p.Status != draft.StatusClosed {
					r.Rule, r.Target = "edit_market_target", p.ID
					return Decision{Kind: KindUpdate, TargetID: p.ID, ReasonJSON: marshal(r)}
				}
			}
			// market mentioned but matches no existing position: a new
			// position on a new market, not an edit
			r.Rule, r.Market = "edit_rerouted_create", single
			return Decision{Kind: KindCreate, Market: single, Side: parseSide(in.Text), ReasonJSON: marshal(r)}
		}
		if in.Selected != nil {
			r.Rule, r.Target = "edit_selected_target", in.Selected.ID
			return Decision{Kind: KindUpdate, TargetID: in.Selected.ID, ReasonJSON: marshal(r)}
		}
		r.Rule = "edit_no_target"
		return Decision{Kind: KindReject, ReasonJSON: marshal(r)}
	}

	// rule 4: edit verb with nothing to act on
	if r.EditVerb && in.Selected == nil && !resolved {
		r.Rule = "edit_no_selection"
		return Decision{Kind: KindReject, ReasonJSON: marshal(r)}
	}

	// rule 5: default is CREATE, never a silent update. Without a resolved
	// market the create still has to clarify first.
	if resolved {
		r.Rule, r.Market = "default_create", single
		return Decision{Kind: KindCreate, Market: single, Side: parseSide(in.Text), ReasonJSON: marshal(r)}
	}
	r.Rule, r.Candidates = "default_create_unresolved", in.Market.Symbols
	return Decision{Kind: KindClarify, Candidates: in.Market.Symbols, ReasonJSON: marshal(r)}
}

// HasNewTradeLanguage reports whether the text carries an open/enter/side
// verb, the trigger for rules 1 and 2.
func HasNewTradeLanguage(text string) bool {
	return newTradeRe.MatchString(text)
}

// SideOf parses the trade side from text, defaulting to long.
func SideOf(text string) draft.Side {
	return parseSide(text)
}

func parseSide(text string) draft.Side {
	lowered := strings.ToLower(text)
	// the first side word wins; "short" anywhere before "long" means short
	shortIdx := indexOfMatch(shortSideRe, lowered)
	longIdx := strings.Index(lowered, "long")
	if shortIdx >= 0 && (longIdx < 0 || shortIdx < longIdx) {
		return draft.SideShort
	}
	return draft.SideLong
}

func indexOfMatch(re *regexp.Regexp, s string) int {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return -1
	}
	return loc[0]
}

func marshal(r reason) string {
	b, _ := json.Marshal(r)
	return string(b)
}
