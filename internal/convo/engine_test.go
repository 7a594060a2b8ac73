package convo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blossomlabs/intent-trader/internal/account"
	"github.com/blossomlabs/intent-trader/internal/config"
	"github.com/blossomlabs/intent-trader/internal/diag"
	"github.com/blossomlabs/intent-trader/internal/draft"
	"github.com/blossomlabs/intent-trader/internal/ledger"
)

type engineOpt func(*config.Root)

func withHighRiskDisabled(c *config.Root) {
	c.HighRisk.LeverageThreshold = 1000
	c.HighRisk.RiskCeilingPct = 100000
}

func withSettleDelay(ms int) engineOpt {
	return func(c *config.Root) { c.Execution.SettleDelayMs = ms }
}

func newTestEngine(t *testing.T, cashUSD float64, opts ...engineOpt) *Engine {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Execution.SettleDelayMs = -1 // settle synchronously
	cfg.Execution.AutoRetryBlocked = true
	for _, opt := range opts {
		opt(&cfg)
	}
	log := ledger.New(ledger.NewMemoryStore(), 90*time.Second, diag.StrictSink{})
	return NewEngine(cfg, log, account.NewSimProvider(cashUSD), diag.StrictSink{})
}

func turn(t *testing.T, e *Engine, sessionID, text string) Result {
	t.Helper()
	res, err := e.ProcessTurn(context.Background(), Turn{SessionID: sessionID, Text: text, Key: "k-" + text})
	require.NoError(t, err)
	return res
}

func TestFirstMessageCreatesExactlyOneSession(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled)

	res := turn(t, e, "", "long BTC 2% risk 10x")
	require.NotEmpty(t, res.SessionID)

	sessions, err := e.Ledger().Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "long BTC 2% risk 10x", sessions[0].Title, "title rewritten from the sentinel")

	msgs, err := e.Ledger().Messages(context.Background(), res.SessionID)
	require.NoError(t, err)
	var userCount int
	for _, m := range msgs {
		if m.Role == ledger.RoleUser {
			userCount++
		}
	}
	assert.Equal(t, 1, userCount, "exactly one user message")
}

func TestTradeVerbWithoutMarketAlwaysClarifies(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled)

	for _, text := range []string{
		"open a position with 5x leverage",
		"buy something good",
		"enter a trade, 2% risk",
	} {
		res := turn(t, e, "", text)
		assert.Equal(t, StateAwaitingClarify, res.State, "text %q", text)
		assert.Empty(t, e.Drafts(res.SessionID), "no draft with a guessed market for %q", text)
	}
}

func TestClarifyResumesOriginalIntent(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled)

	res := turn(t, e, "", "long 2% risk 5x")
	sid := res.SessionID
	require.Equal(t, StateAwaitingClarify, res.State)

	res = turn(t, e, sid, "BTC")
	assert.Equal(t, StateIdle, res.State, "resumed and settled")

	drafts := e.Drafts(sid)
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "BTC", d.Market)
	assert.Equal(t, draft.SideLong, d.Side)
	assert.Equal(t, 196.00, d.MarginUSD, "original 2% risk preserved across clarification")
	assert.Equal(t, 980.00, d.NotionalUSD)
	assert.Equal(t, draft.StatusExecuted, d.Status)
}

func TestClarifyGivesUpAfterRetryCap(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled, func(c *config.Root) {
		c.Conversation.ClarifyRetryCap = 2
	})

	res := turn(t, e, "", "open a trade")
	sid := res.SessionID
	require.Equal(t, StateAwaitingClarify, res.State)

	res = turn(t, e, sid, "no idea")
	assert.Equal(t, StateAwaitingClarify, res.State, "one re-prompt within budget")

	res = turn(t, e, sid, "still no idea")
	assert.Equal(t, StateIdle, res.State, "retry budget exhausted resets to idle")
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[0].Text, "start fresh")
}

func TestTwoTradesStayIndependent(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled)

	res := turn(t, e, "", "long BTC 2% risk 10x")
	sid := res.SessionID
	res = turn(t, e, sid, "long ETH 1% risk 3x")
	require.Equal(t, StateIdle, res.State)

	drafts := e.Drafts(sid)
	require.Len(t, drafts, 2)
	btc, eth := drafts[0], drafts[1]
	assert.Equal(t, "BTC", btc.Market)
	assert.Equal(t, 1960.00, btc.NotionalUSD, "creating the second draft never mutates the first")
	assert.Equal(t, "ETH", eth.Market)
	assert.Equal(t, 294.00, eth.NotionalUSD)
}

func TestHighRiskConfirmationExecutesStoredDraftID(t *testing.T) {
	e := newTestEngine(t, 9800) // default gate: 10x trips it

	res := turn(t, e, "", "long BTC 2% risk 10x")
	sid := res.SessionID
	require.Equal(t, StateAwaitingConfirmation, res.State)
	require.NotEmpty(t, res.Messages)
	assert.True(t, res.Messages[0].RiskWarning, "preview carries the warning payload")

	drafts := e.Drafts(sid)
	require.Len(t, drafts, 1)
	original := drafts[0]
	require.Equal(t, draft.StatusDraft, original.Status)

	// an unrelated new trade while confirmation is pending becomes an
	// independent, unexecuted draft
	res = turn(t, e, sid, "open a position on the rate cut")
	assert.Equal(t, StateAwaitingConfirmation, res.State, "confirmation still pending")
	drafts = e.Drafts(sid)
	require.Len(t, drafts, 2)
	parked := drafts[1]
	assert.Equal(t, "FED25BPS", parked.Market)
	assert.Equal(t, draft.StatusDraft, parked.Status)

	// proceed must execute the original draft id, never the newer one
	res = turn(t, e, sid, "proceed")
	assert.Equal(t, StateIdle, res.State)
	require.NotEmpty(t, res.Messages, "a proceed turn still answers in-turn")
	assert.Contains(t, res.Messages[0].Text, "Executing")

	got, _ := e.drafts.Get(original.ID)
	assert.Equal(t, draft.StatusExecuted, got.Status)
	gotParked, _ := e.drafts.Get(parked.ID)
	assert.Equal(t, draft.StatusDraft, gotParked.Status, "unrelated draft stays unexecuted")
}

func TestSecondHighRiskDraftCannotHijackConfirmation(t *testing.T) {
	e := newTestEngine(t, 9800)

	res := turn(t, e, "", "long BTC 2% risk 15x")
	sid := res.SessionID
	require.Equal(t, StateAwaitingConfirmation, res.State)
	original := e.Drafts(sid)[0]

	// the interleaved trade is itself high-risk (12% beats the ceiling) but
	// must not take over the pending confirmation
	res = turn(t, e, sid, "open the rate cut with 12% risk")
	assert.Equal(t, StateAwaitingConfirmation, res.State, "confirmation still pending")
	drafts := e.Drafts(sid)
	require.Len(t, drafts, 2)
	second := drafts[1]
	assert.Equal(t, draft.StatusDraft, second.Status)
	require.NotEmpty(t, res.Messages)
	assert.True(t, res.Messages[0].RiskWarning, "the held draft still carries its warning")

	res = turn(t, e, sid, "proceed")
	assert.Equal(t, StateIdle, res.State)

	gotOriginal, _ := e.drafts.Get(original.ID)
	assert.Equal(t, draft.StatusExecuted, gotOriginal.Status, "proceed executes the stored draft, not the newest one")
	gotSecond, _ := e.drafts.Get(second.ID)
	assert.Equal(t, draft.StatusDraft, gotSecond.Status)
}

func TestConfirmationEditDiscardsDraft(t *testing.T) {
	e := newTestEngine(t, 9800)

	res := turn(t, e, "", "long ETH 100x no stop loss")
	sid := res.SessionID
	require.Equal(t, StateAwaitingConfirmation, res.State)
	d := e.Drafts(sid)[0]

	res = turn(t, e, sid, "edit")
	assert.Equal(t, StateIdle, res.State)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[0].Text, "long ETH 100x no stop loss", "original text echoed for editing")

	got, _ := e.drafts.Get(d.ID)
	assert.Equal(t, draft.StatusClosed, got.Status)
}

func TestConfirmationRewriteProposesSaferPhrasing(t *testing.T) {
	e := newTestEngine(t, 9800)

	res := turn(t, e, "", "long ETH 100x no stop loss")
	sid := res.SessionID
	require.Equal(t, StateAwaitingConfirmation, res.State)

	res = turn(t, e, sid, "rewrite")
	assert.Equal(t, StateIdle, res.State)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[0].Text, "stop loss")
	assert.Contains(t, res.Messages[0].Text, "ETH")
}

func TestResetClearsPendingConfirmationWithoutExecuting(t *testing.T) {
	e := newTestEngine(t, 9800)

	res := turn(t, e, "", "long BTC 2% risk 15x")
	sid := res.SessionID
	require.Equal(t, StateAwaitingConfirmation, res.State)
	d := e.Drafts(sid)[0]

	rres, err := e.Reset(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, rres.State)

	got, _ := e.drafts.Get(d.ID)
	assert.NotEqual(t, draft.StatusExecuted, got.Status, "reset never executes")
	assert.Equal(t, draft.StatusClosed, got.Status)
}

func TestUpdateTargetsPositionByMarket(t *testing.T) {
	e := newTestEngine(t, 10000, withHighRiskDisabled)

	res := turn(t, e, "", "long BTC 2% risk")
	sid := res.SessionID
	d := e.Drafts(sid)[0]
	require.Equal(t, draft.StatusExecuted, d.Status)
	require.Equal(t, 200.00, d.MarginUSD)

	res = turn(t, e, sid, "set the leverage to 5x on BTC")
	assert.Equal(t, StateIdle, res.State)

	got, _ := e.drafts.Get(d.ID)
	assert.Equal(t, 5.0, got.Leverage)
	assert.Equal(t, 1000.00, got.NotionalUSD, "notional re-derived on leverage change")
}

func TestEditVerbOnNewMarketCreatesInsteadOfMutating(t *testing.T) {
	e := newTestEngine(t, 10000, withHighRiskDisabled)

	res := turn(t, e, "", "long BTC 2% risk")
	sid := res.SessionID
	btc := e.Drafts(sid)[0]

	res = turn(t, e, sid, "set leverage to 3x on SOL")
	assert.Equal(t, StateIdle, res.State)

	drafts := e.Drafts(sid)
	require.Len(t, drafts, 2, "a different market is a new position, not an edit")
	assert.Equal(t, "SOL", drafts[1].Market)

	gotBTC, _ := e.drafts.Get(btc.ID)
	assert.Equal(t, btc.NotionalUSD, gotBTC.NotionalUSD, "existing position untouched")
}

func TestEditWithoutTargetRejects(t *testing.T) {
	e := newTestEngine(t, 10000, withHighRiskDisabled)

	res := turn(t, e, "", "change the risk please")
	assert.Equal(t, StateIdle, res.State)
	require.NotEmpty(t, res.Messages)
	assert.Equal(t, rejectMsg, res.Messages[0].Text)
	assert.Empty(t, e.Drafts(res.SessionID))
}

func TestDuplicateTurnKeyIsNoOp(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled)
	ctx := context.Background()

	res, err := e.ProcessTurn(ctx, Turn{Text: "long BTC 2% risk", Key: "same"})
	require.NoError(t, err)
	sid := res.SessionID
	require.False(t, res.Duplicate)

	res2, err := e.ProcessTurn(ctx, Turn{SessionID: sid, Text: "long BTC 2% risk", Key: "same"})
	require.NoError(t, err)
	assert.True(t, res2.Duplicate)
	assert.Empty(t, res2.Messages)
	assert.Len(t, e.Drafts(sid), 1, "no second draft from a replayed turn")
}

func TestInsufficientFundsBlocksAndFundingResumes(t *testing.T) {
	e := newTestEngine(t, 1000, withHighRiskDisabled)

	res := turn(t, e, "", "long BTC $2000")
	sid := res.SessionID
	require.Equal(t, StateIdle, res.State)

	d := e.Drafts(sid)[0]
	require.Equal(t, draft.StatusBlocked, d.Status)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, strings.ToLower(res.Messages[len(res.Messages)-1].Text), "blocked")

	fres, err := e.Fund(context.Background(), sid, 5000)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, fres.State)

	got, _ := e.drafts.Get(d.ID)
	assert.Equal(t, draft.StatusExecuted, got.Status, "blocked draft re-queued and settled after funding")
}

func TestMessageMidExecutionCreatesIndependentDraft(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled, withSettleDelay(80))

	res := turn(t, e, "", "long BTC 2% risk 2x")
	sid := res.SessionID
	require.Equal(t, StateExecuting, res.State)
	btc := e.Drafts(sid)[0]

	res = turn(t, e, sid, "long ETH 1% risk 2x")
	drafts := e.Drafts(sid)
	require.Len(t, drafts, 2)
	assert.Equal(t, draft.StatusDraft, drafts[1].Status, "second message must not ride the in-flight execution")

	time.Sleep(200 * time.Millisecond)
	gotBTC, _ := e.drafts.Get(btc.ID)
	assert.Equal(t, draft.StatusExecuted, gotBTC.Status)
	assert.Equal(t, StateIdle, e.State(sid))

	// the held draft executes on an explicit proceed, with an in-turn reply
	res = turn(t, e, sid, "proceed")
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[0].Text, "Executing")
	time.Sleep(200 * time.Millisecond)
	gotETH, _ := e.drafts.Get(drafts[1].ID)
	assert.Equal(t, draft.StatusExecuted, gotETH.Status)
}

func TestResetCancelsInFlightExecution(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled, withSettleDelay(150))

	res := turn(t, e, "", "long BTC 2% risk 2x")
	sid := res.SessionID
	require.Equal(t, StateExecuting, res.State)
	d := e.Drafts(sid)[0]

	_, err := e.Reset(context.Background(), sid)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	got, _ := e.drafts.Get(d.ID)
	assert.Equal(t, draft.StatusClosed, got.Status, "only reset cancels execution")
}

func TestResetCancelsExecutionDespiteHighRiskInterleave(t *testing.T) {
	e := newTestEngine(t, 9800, withSettleDelay(150))

	res := turn(t, e, "", "long BTC 2% risk 2x")
	sid := res.SessionID
	require.Equal(t, StateExecuting, res.State)
	btc := e.Drafts(sid)[0]

	res = turn(t, e, sid, "open the rate cut with 12% risk")
	assert.Equal(t, StateExecuting, res.State, "a high-risk draft mid-execution must not displace the in-flight state")
	drafts := e.Drafts(sid)
	require.Len(t, drafts, 2)
	assert.Equal(t, draft.StatusDraft, drafts[1].Status)

	_, err := e.Reset(context.Background(), sid)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	got, _ := e.drafts.Get(btc.ID)
	assert.Equal(t, draft.StatusClosed, got.Status, "reset still cancels the in-flight execution")
}

func TestExecutedPreviewRewrittenInPlace(t *testing.T) {
	e := newTestEngine(t, 9800, withHighRiskDisabled)
	ctx := context.Background()

	res := turn(t, e, "", "long BTC 2% risk 2x")
	sid := res.SessionID

	msgs, err := e.Ledger().Messages(ctx, sid)
	require.NoError(t, err)
	// one user message plus exactly one assistant message, updated in place
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "Executed:")
	assert.NotEmpty(t, msgs[1].DraftID)
}
