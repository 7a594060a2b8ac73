package convo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blossomlabs/intent-trader/internal/account"
	"github.com/blossomlabs/intent-trader/internal/config"
	"github.com/blossomlabs/intent-trader/internal/diag"
	"github.com/blossomlabs/intent-trader/internal/draft"
	"github.com/blossomlabs/intent-trader/internal/extract"
	"github.com/blossomlabs/intent-trader/internal/intent"
	"github.com/blossomlabs/intent-trader/internal/ledger"
	"github.com/blossomlabs/intent-trader/internal/observ"
	"github.com/blossomlabs/intent-trader/internal/riskgate"
)

const rejectMsg = "Select a position to update first."

var (
	proceedRe = regexp.MustCompile(`(?i)\b(proceed|confirm|yes|yep|do it|execute|go ahead|ship it)\b`)
	editRe    = regexp.MustCompile(`(?i)\bedit\b`)
	rewriteRe = regexp.MustCompile(`(?i)\b(rewrite|safer)\b`)
	discardRe = regexp.MustCompile(`(?i)\b(discard|cancel|drop|scrap)\b`)
	retryRe   = regexp.MustCompile(`(?i)\b(retry|resume)\b`)
)

// Engine is the turn-processing entry point. It owns one sessionState per
// session and sequences extraction, classification, drafting, the risk
// gate, and execution.
type Engine struct {
	cfg    config.Root
	table  *extract.MarketTable
	drafts *draft.Manager
	log    *ledger.Ledger
	acct   account.Provider
	sink   diag.Sink

	mu       sync.Mutex
	sessions map[string]*sessionState
	previews map[string]string // draft id -> preview message id

	settleDelay   time.Duration
	clarifyWindow time.Duration
}

func NewEngine(cfg config.Root, log *ledger.Ledger, acct account.Provider, sink diag.Sink) *Engine {
	if sink == nil {
		sink = diag.LogSink{}
	}
	return &Engine{
		cfg:           cfg,
		table:         extract.NewMarketTable(cfg.Markets),
		drafts:        draft.NewManager(cfg.Sizing.DefaultRiskPct, cfg.Sizing.DefaultLeverage, sink),
		log:           log,
		acct:          acct,
		sink:          sink,
		sessions:      make(map[string]*sessionState),
		previews:      make(map[string]string),
		settleDelay:   time.Duration(cfg.Execution.SettleDelayMs) * time.Millisecond,
		clarifyWindow: time.Duration(cfg.Conversation.ClarifyWindowSecs) * time.Second,
	}
}

// Turn is one inbound user message. An empty SessionID starts a new
// session; an empty Key derives one from the text and a coarse timestamp.
type Turn struct {
	SessionID string
	Text      string
	Key       string
}

// Result is what one turn produced.
type Result struct {
	SessionID string
	State     StateKind
	Duplicate bool
	Messages  []*ledger.Message // assistant messages appended this turn
}

// ProcessTurn handles one user message to completion. The session id is
// computed synchronously here and threaded through every step; user-facing
// conditions come back as appended assistant messages, never as errors.
func (e *Engine) ProcessTurn(ctx context.Context, t Turn) (Result, error) {
	sessionID := t.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	key := t.Key
	if key == "" {
		key = ledger.DeriveKey(sessionID, t.Text, time.Now().UTC())
	}

	_, dup, err := e.log.AppendUser(ctx, sessionID, t.Text, key)
	if err != nil {
		return Result{SessionID: sessionID}, fmt.Errorf("append turn: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(sessionID)
	res := Result{SessionID: sessionID}
	if dup {
		res.Duplicate = true
		res.State = st.kind
		return res, nil
	}

	observ.IncCounter("turns_total", nil)
	switch st.kind {
	case StateAwaitingClarify:
		e.turnClarify(ctx, sessionID, st, t.Text, key, &res)
	case StateAwaitingConfirmation:
		e.turnConfirm(ctx, sessionID, st, t.Text, key, &res)
	case StateExecuting:
		e.turnIdleLike(ctx, sessionID, st, t.Text, key, &res, false)
	default:
		e.turnIdleLike(ctx, sessionID, st, t.Text, key, &res, true)
	}

	// the turn contract: something is always appended
	if len(res.Messages) == 0 {
		e.sink.Violation("turn_without_message", map[string]any{"session": sessionID})
		e.say(ctx, &res, sessionID, "Sorry, I couldn't act on that — try rephrasing.", "", false)
	}

	res.State = st.kind
	return res, nil
}

// Reset is the global reset event: it clears pending clarification and
// confirmation state and cancels any in-flight execution without executing
// anything.
func (e *Engine) Reset(ctx context.Context, sessionID string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(sessionID)
	res := Result{SessionID: sessionID}

	switch st.kind {
	case StateAwaitingConfirmation:
		if st.draftID != "" {
			if _, err := e.drafts.Close(st.draftID, nil); err != nil {
				observ.LogErr("reset_discard_failed", err, map[string]any{"draft_id": st.draftID})
			}
		}
	case StateExecuting:
		if st.draftID != "" {
			if d, ok := e.drafts.Get(st.draftID); ok {
				if _, err := e.drafts.Close(st.draftID, nil); err == nil {
					e.acct.Release(ctx, d.MarginUSD)
				}
			}
		}
	}
	st.toIdle()
	observ.IncCounter("resets_total", nil)
	e.say(ctx, &res, sessionID, "Okay — cleared pending drafts and confirmations.", "", false)
	res.State = st.kind
	return res, nil
}

// Fund simulates an external funding event. Blocked drafts are re-queued,
// and re-executed automatically when configured to.
func (e *Engine) Fund(ctx context.Context, sessionID string, amountUSD float64) (Result, error) {
	e.acct.Deposit(ctx, amountUSD)

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(sessionID)
	res := Result{SessionID: sessionID}
	e.say(ctx, &res, sessionID, fmt.Sprintf("Added $%.2f to your account.", amountUSD), "", false)

	for _, d := range e.drafts.List(sessionID) {
		if d.Status != draft.StatusBlocked {
			continue
		}
		if !e.cfg.Execution.AutoRetryBlocked {
			e.say(ctx, &res, sessionID, fmt.Sprintf("Your %s draft is still blocked — say retry to resume it.", d.Market), d.ID, false)
			continue
		}
		if _, err := e.drafts.Transition(d.ID, draft.StatusQueued); err != nil {
			observ.LogErr("requeue_failed", err, map[string]any{"draft_id": d.ID})
			continue
		}
		e.execute(ctx, sessionID, st, d.ID, &res)
	}
	res.State = st.kind
	return res, nil
}

// State returns the session's conversation mode.
func (e *Engine) State(sessionID string) StateKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(sessionID).kind
}

// Drafts lists the session's drafts for rendering.
func (e *Engine) Drafts(sessionID string) []*draft.Draft {
	return e.drafts.List(sessionID)
}

// Ledger exposes the message log for rendering.
func (e *Engine) Ledger() *ledger.Ledger { return e.log }

func (e *Engine) stateLocked(sessionID string) *sessionState {
	st, ok := e.sessions[sessionID]
	if !ok {
		st = newSessionState(e.cfg.Conversation.ClarifyRetryCap, e.clarifyWindow)
		e.sessions[sessionID] = st
	}
	return st
}

// turnIdleLike handles Idle turns, and Executing turns with execution of
// new drafts suppressed: a message arriving mid-execution never touches
// the in-flight draft.
func (e *Engine) turnIdleLike(ctx context.Context, sessionID string, st *sessionState, text, key string, res *Result, allowExecute bool) {
	// action words on a parked or blocked draft, only when the message is
	// not itself a new trade
	if !intent.HasNewTradeLanguage(text) {
		if e.handleIdleAction(ctx, sessionID, st, text, res, allowExecute) {
			return
		}
	}

	mods := extract.ParseModifiers(text)
	dec := intent.Classify(intent.Input{
		Text:      text,
		Market:    e.table.Market(text),
		Mods:      mods,
		Selected:  e.selectedDraft(st),
		Positions: e.drafts.List(sessionID),
	})
	observ.IncCounter("intents_total", map[string]string{"kind": string(dec.Kind)})
	observ.Log("intent_classified", map[string]any{"session": sessionID, "reason": dec.ReasonJSON})

	switch dec.Kind {
	case intent.KindClarify:
		e.askClarify(ctx, sessionID, st, text, mods, dec.Candidates, res)
	case intent.KindReject:
		e.say(ctx, res, sessionID, rejectMsg, "", false)
	case intent.KindUpdate:
		e.applyUpdate(ctx, sessionID, st, dec, mods, res)
	case intent.KindCreate:
		e.createAndGate(ctx, sessionID, st, dec.Market, dec.Side, mods, text, key, res, allowExecute)
	}
}

// handleIdleAction resolves proceed/retry/discard words against a parked or
// blocked draft. Returns true when the message was consumed.
func (e *Engine) handleIdleAction(ctx context.Context, sessionID string, st *sessionState, text string, res *Result, allowExecute bool) bool {
	target := e.pendingDraft(sessionID)

	switch {
	case discardRe.MatchString(text):
		if target == nil {
			return false
		}
		if _, err := e.drafts.Close(target.ID, nil); err != nil {
			observ.LogErr("discard_failed", err, map[string]any{"draft_id": target.ID})
			return false
		}
		e.say(ctx, res, sessionID, fmt.Sprintf("Discarded the %s draft.", target.Market), target.ID, false)
		return true

	case proceedRe.MatchString(text) || retryRe.MatchString(text):
		if target == nil {
			target = e.blockedDraft(sessionID)
			if target == nil {
				return false
			}
			if _, err := e.drafts.Transition(target.ID, draft.StatusQueued); err != nil {
				observ.LogErr("requeue_failed", err, map[string]any{"draft_id": target.ID})
				return false
			}
		}
		if !allowExecute {
			e.say(ctx, res, sessionID, "An execution is already in flight — I'll hold that draft until it settles.", target.ID, false)
			return true
		}
		e.execute(ctx, sessionID, st, target.ID, res)
		return true
	}
	return false
}

func (e *Engine) turnClarify(ctx context.Context, sessionID string, st *sessionState, text, key string, res *Result) {
	mkt := e.table.Market(text)
	if sym, ok := mkt.Single(); ok {
		pending := st.pending
		combined := text
		mods := extract.ParseModifiers(text)
		if pending != nil {
			combined = pending.Text + " " + text
			mods = mergeMods(pending.Mods, mods)
		}
		st.toIdle()
		observ.IncCounter("clarifications_resolved_total", nil)
		e.createAndGate(ctx, sessionID, st, sym, intent.SideOf(combined), mods, combined, key, res, true)
		return
	}

	// still unresolved: re-prompt within the limiter budget, then give up
	if !st.clarifyLimiter.Allow() {
		st.toIdle()
		observ.IncCounter("clarifications_abandoned_total", nil)
		e.say(ctx, res, sessionID, `Let's start fresh — send the full trade including the market, e.g. "long BTC 2% risk 5x".`, "", false)
		return
	}
	if mkt.Ambiguous() {
		e.say(ctx, res, sessionID, fmt.Sprintf("Which market did you mean: %s?", strings.Join(mkt.Symbols, ", ")), "", false)
		return
	}
	e.say(ctx, res, sessionID, e.supportedPrompt(), "", false)
}

func (e *Engine) turnConfirm(ctx context.Context, sessionID string, st *sessionState, text, key string, res *Result) {
	switch {
	case proceedRe.MatchString(text):
		// confirmation executes the stored draft id, never a re-parse of
		// the proceed text
		draftID := st.draftID
		st.toIdle()
		observ.IncCounter("confirmations_total", map[string]string{"action": "proceed"})
		e.execute(ctx, sessionID, st, draftID, res)

	case editRe.MatchString(text):
		original := st.confirmText
		e.discardConfirmation(st)
		observ.IncCounter("confirmations_total", map[string]string{"action": "edit"})
		e.say(ctx, res, sessionID, fmt.Sprintf("No problem — rework it and send again. Original request: %q", original), "", false)

	case rewriteRe.MatchString(text):
		d, _ := e.drafts.Get(st.draftID)
		e.discardConfirmation(st)
		observ.IncCounter("confirmations_total", map[string]string{"action": "rewrite"})
		e.say(ctx, res, sessionID, fmt.Sprintf("Here's a safer version you could send: %q", e.saferPhrasing(d)), "", false)

	default:
		// an unrelated message must not hijack the pending confirmation:
		// a new trade becomes an independent, unexecuted draft
		if intent.HasNewTradeLanguage(text) {
			mods := extract.ParseModifiers(text)
			if sym, ok := e.table.Market(text).Single(); ok {
				e.createAndGate(ctx, sessionID, st, sym, intent.SideOf(text), mods, text, key, res, false)
				return
			}
		}
		e.say(ctx, res, sessionID, "You have a draft waiting on confirmation — reply proceed, edit, or rewrite.", st.draftID, st.highRisk)
	}
}

func (e *Engine) askClarify(ctx context.Context, sessionID string, st *sessionState, text string, mods extract.Modifiers, candidates []string, res *Result) {
	st.kind = StateAwaitingClarify
	st.pending = &PendingIntent{Text: text, Mods: mods}
	st.clarifyLimiter.Allow() // the first prompt spends one retry token
	observ.IncCounter("clarifications_total", nil)

	if len(candidates) > 1 {
		e.say(ctx, res, sessionID, fmt.Sprintf("Which market did you mean: %s?", strings.Join(candidates, ", ")), "", false)
		return
	}
	e.say(ctx, res, sessionID, e.supportedPrompt(), "", false)
}

func (e *Engine) createAndGate(ctx context.Context, sessionID string, st *sessionState, market string, side draft.Side, mods extract.Modifiers, gateText, key string, res *Result, allowExecute bool) {
	accountValue, err := e.acct.AccountValue(ctx)
	if err != nil {
		observ.LogErr("account_value_failed", err, map[string]any{"session": sessionID})
		e.say(ctx, res, sessionID, "The balance engine is unavailable right now — try again in a moment.", "", false)
		return
	}

	if mods.SideFlip == string(draft.SideShort) {
		side = draft.SideShort
	} else if mods.SideFlip == string(draft.SideLong) {
		side = draft.SideLong
	}

	d, err := e.drafts.Create(draft.CreateSpec{
		SessionID: sessionID,
		Class:     draft.ClassFromString(e.table.Class(market)),
		Side:      side,
		Market:    market,
		Input:     draft.SizingInput{RiskPct: mods.RiskPct, MarginUSD: mods.SizeUSD, Leverage: mods.Leverage},
		OriginKey: key,
	}, accountValue)
	switch {
	case errors.Is(err, draft.ErrConcurrentDraft):
		e.say(ctx, res, sessionID, "You already have a pending draft in that class — confirm or discard it before opening another.", "", false)
		return
	case errors.Is(err, draft.ErrSizingUnderflow):
		e.say(ctx, res, sessionID, "That sizing works out to zero margin — give me a risk percent or a dollar size.", "", false)
		return
	case err != nil:
		observ.LogErr("create_failed", err, map[string]any{"session": sessionID, "market": market})
		e.say(ctx, res, sessionID, "I couldn't put that draft together — try rephrasing.", "", false)
		return
	}
	st.selectedID = d.ID

	gate := riskgate.Assess(gateText, d, riskgate.Config{
		LeverageThreshold: e.cfg.HighRisk.LeverageThreshold,
		RiskCeilingPct:    e.cfg.HighRisk.RiskCeilingPct,
	})

	if gate.HighRisk {
		warn := previewText(d) + "\nHeads up: " + strings.Join(gate.Reasons, "; ") + "."
		// a confirmation or execution is already pending: this draft must not
		// replace the stored one, so it is parked unconfirmed
		if !allowExecute {
			msg := e.say(ctx, res, sessionID,
				warn+" I'll hold it as a draft until the pending one settles — say proceed afterwards to run it.",
				d.ID, true)
			if msg != nil {
				e.previews[d.ID] = msg.ID
			}
			return
		}
		msg := e.say(ctx, res, sessionID,
			warn+" Reply proceed to execute exactly as drafted, edit to revise it, or rewrite for a safer version.",
			d.ID, true)
		if msg != nil {
			e.previews[d.ID] = msg.ID
		}
		st.kind = StateAwaitingConfirmation
		st.draftID = d.ID
		st.highRisk = true
		st.confirmText = gateText
		return
	}

	msg := e.say(ctx, res, sessionID, previewText(d), d.ID, false)
	if msg != nil {
		e.previews[d.ID] = msg.ID
	}
	if !allowExecute {
		e.say(ctx, res, sessionID, "I'll hold this one as a draft until your pending confirmation or execution settles — say proceed when ready.", d.ID, false)
		return
	}
	e.execute(ctx, sessionID, st, d.ID, res)
}

func (e *Engine) applyUpdate(ctx context.Context, sessionID string, st *sessionState, dec intent.Decision, mods extract.Modifiers, res *Result) {
	if dec.Kind != intent.KindUpdate {
		// tripwire: the update path must never run on a create turn
		e.sink.Violation("update_outside_update_turn", map[string]any{"session": sessionID, "kind": string(dec.Kind)})
		e.say(ctx, res, sessionID, "Sorry, I couldn't act on that — try rephrasing.", "", false)
		return
	}
	if !mods.HasAny() {
		e.say(ctx, res, sessionID, "Tell me what to change — size, risk percent, leverage, stop, or take profit.", dec.TargetID, false)
		return
	}

	accountValue, err := e.acct.AccountValue(ctx)
	if err != nil {
		observ.LogErr("account_value_failed", err, map[string]any{"session": sessionID})
		e.say(ctx, res, sessionID, "The balance engine is unavailable right now — try again in a moment.", "", false)
		return
	}

	u := draft.Update{RiskPct: mods.RiskPct, MarginUSD: mods.SizeUSD, Leverage: mods.Leverage}
	if mods.SideFlip != "" {
		side := draft.Side(mods.SideFlip)
		if mods.SideFlip == "hedge" {
			side = draft.SideShort
			if cur, ok := e.drafts.Get(dec.TargetID); ok && cur.Side == draft.SideShort {
				side = draft.SideLong
			}
		}
		u.Side = &side
	}

	d, err := e.drafts.Update(dec.TargetID, u, accountValue)
	if err != nil {
		observ.LogErr("update_failed", err, map[string]any{"draft_id": dec.TargetID})
		e.say(ctx, res, sessionID, "That position can't be changed anymore.", dec.TargetID, false)
		return
	}
	st.selectedID = d.ID
	e.say(ctx, res, sessionID, fmt.Sprintf("Updated %s: $%.2f margin at %gx leverage, notional $%.2f, risk %.1f%%.",
		d.Market, d.MarginUSD, d.Leverage, d.NotionalUSD, d.RiskPct), d.ID, false)
}

// execute moves a draft through queued -> executing and schedules the
// settle. Only a global reset can cancel it.
func (e *Engine) execute(ctx context.Context, sessionID string, st *sessionState, draftID string, res *Result) {
	d, ok := e.drafts.Get(draftID)
	if !ok {
		e.sink.Violation("execute_unknown_draft", map[string]any{"draft_id": draftID})
		e.say(ctx, res, sessionID, "Sorry, I lost track of that draft — start it again.", "", false)
		return
	}

	if d.Status == draft.StatusDraft {
		if _, err := e.drafts.Transition(draftID, draft.StatusQueued); err != nil {
			observ.LogErr("queue_failed", err, map[string]any{"draft_id": draftID})
			e.say(ctx, res, sessionID, "That draft can't be executed anymore.", draftID, false)
			return
		}
	}

	if err := e.acct.Reserve(ctx, d.MarginUSD); err != nil {
		if _, terr := e.drafts.Transition(draftID, draft.StatusBlocked); terr != nil {
			observ.LogErr("block_failed", terr, map[string]any{"draft_id": draftID})
		}
		e.say(ctx, res, sessionID, fmt.Sprintf("Not enough balance to fund the $%.2f margin — the %s draft is blocked until you add funds.",
			d.MarginUSD, d.Market), draftID, false)
		return
	}

	if _, err := e.drafts.Transition(draftID, draft.StatusExecuting); err != nil {
		observ.LogErr("executing_failed", err, map[string]any{"draft_id": draftID})
		e.acct.Release(ctx, d.MarginUSD)
		e.say(ctx, res, sessionID, "That draft can't be executed anymore.", draftID, false)
		return
	}

	st.kind = StateExecuting
	st.draftID = draftID

	// proceed and retry turns produce no other output and the settle only
	// rewrites the existing preview, so acknowledge here
	if len(res.Messages) == 0 {
		e.say(ctx, res, sessionID, fmt.Sprintf("Executing your %s draft.", d.Market), draftID, false)
	}

	if e.settleDelay <= 0 {
		e.settleLocked(ctx, sessionID, st, draftID)
		return
	}
	st.settleTimer = time.AfterFunc(e.settleDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.settleLocked(context.Background(), sessionID, e.stateLocked(sessionID), draftID)
	})
}

// settleLocked completes an execution: the draft becomes executed and its
// preview message is rewritten in place.
func (e *Engine) settleLocked(ctx context.Context, sessionID string, st *sessionState, draftID string) {
	d, err := e.drafts.Transition(draftID, draft.StatusExecuted)
	if err != nil {
		// reset already cancelled this execution
		observ.LogErr("settle_skipped", err, map[string]any{"draft_id": draftID})
		return
	}

	text := fmt.Sprintf("Executed: %s %s — $%.2f notional at %gx leverage.",
		strings.ToUpper(string(d.Side)), d.Market, d.NotionalUSD, d.Leverage)
	if previewID, ok := e.previews[draftID]; ok {
		if err := e.log.MarkExecuted(ctx, previewID, draftID, text); err != nil {
			observ.LogErr("mark_executed_failed", err, map[string]any{"draft_id": draftID})
		}
	} else if _, err := e.log.AppendAssistant(ctx, sessionID, text, draftID, false); err != nil {
		observ.LogErr("settle_message_failed", err, map[string]any{"draft_id": draftID})
	}

	delete(e.previews, draftID)
	st.selectedID = draftID
	if st.kind == StateExecuting && st.draftID == draftID {
		st.toIdle()
	}
	observ.IncCounter("drafts_settled_total", nil)
}

func (e *Engine) discardConfirmation(st *sessionState) {
	if st.draftID != "" {
		if _, err := e.drafts.Close(st.draftID, nil); err != nil {
			observ.LogErr("discard_failed", err, map[string]any{"draft_id": st.draftID})
		}
	}
	st.toIdle()
}

func (e *Engine) selectedDraft(st *sessionState) *draft.Draft {
	if st.selectedID == "" {
		return nil
	}
	d, ok := e.drafts.Get(st.selectedID)
	if !ok {
		return nil
	}
	return d
}

// pendingDraft finds a session draft still in draft status.
func (e *Engine) pendingDraft(sessionID string) *draft.Draft {
	for _, d := range e.drafts.List(sessionID) {
		if d.Status == draft.StatusDraft {
			return d
		}
	}
	return nil
}

func (e *Engine) blockedDraft(sessionID string) *draft.Draft {
	for _, d := range e.drafts.List(sessionID) {
		if d.Status == draft.StatusBlocked {
			return d
		}
	}
	return nil
}

func (e *Engine) say(ctx context.Context, res *Result, sessionID, text, draftID string, riskWarning bool) *ledger.Message {
	m, err := e.log.AppendAssistant(ctx, sessionID, text, draftID, riskWarning)
	if err != nil {
		observ.LogErr("append_assistant_failed", err, map[string]any{"session": sessionID})
		return nil
	}
	res.Messages = append(res.Messages, m)
	return m
}

func (e *Engine) supportedPrompt() string {
	return fmt.Sprintf("Which market do you want to trade? Supported: %s.", strings.Join(e.table.Supported(), ", "))
}

func (e *Engine) saferPhrasing(d *draft.Draft) string {
	if d == nil {
		return "long BTC with 3% risk, 2x leverage and a stop loss"
	}
	lev := d.Leverage
	if lev > 5 {
		lev = 5
	}
	risk := d.RiskPct
	if risk > e.cfg.Sizing.DefaultRiskPct {
		risk = e.cfg.Sizing.DefaultRiskPct
	}
	return fmt.Sprintf("%s %s with %.0f%% risk, %gx leverage and a stop loss", string(d.Side), d.Market, risk, lev)
}

func previewText(d *draft.Draft) string {
	return fmt.Sprintf("Draft ready: %s %s — $%.2f margin at %gx leverage, notional $%.2f, risk %.1f%%.",
		strings.ToUpper(string(d.Side)), d.Market, d.MarginUSD, d.Leverage, d.NotionalUSD, d.RiskPct)
}

func mergeMods(base, over extract.Modifiers) extract.Modifiers {
	out := base
	if over.SizeUSD != nil {
		out.SizeUSD = over.SizeUSD
		out.RiskPct = nil
	}
	if over.RiskPct != nil {
		out.RiskPct = over.RiskPct
		out.SizeUSD = nil
	}
	if over.Leverage != nil {
		out.Leverage = over.Leverage
	}
	if over.SideFlip != "" {
		out.SideFlip = over.SideFlip
	}
	return out
}
