// Package convo sequences the extractors, classifier, draft lifecycle, and
// risk gate behind a per-session state machine. One turn in, one or more
// appended messages out, at most one pending clarification or confirmation
// at a time.
package convo

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/blossomlabs/intent-trader/internal/extract"
)

// StateKind is the conversation mode of a session.
type StateKind string

const (
	StateIdle                 StateKind = "idle"
	StateAwaitingClarify      StateKind = "awaiting_market_clarification"
	StateAwaitingConfirmation StateKind = "awaiting_confirmation"
	StateExecuting            StateKind = "executing"
)

// PendingIntent preserves the original parsed intent across a market
// clarification, so a bare "ETH" answer resumes it instead of re-parsing
// from scratch.
type PendingIntent struct {
	Text string
	Mods extract.Modifiers
}

// sessionState is the per-session singleton tracked by the engine. All
// turn-scoped identifiers (session id, target draft id) are computed once
// at turn entry and passed explicitly; nothing re-reads this mid-turn.
type sessionState struct {
	kind StateKind

	// clarification
	pending        *PendingIntent
	clarifyLimiter *rate.Limiter

	// confirmation / execution
	draftID     string
	highRisk    bool
	confirmText string // originating text, echoed back on edit
	settleTimer *time.Timer

	// currently selected position, threaded into classification
	selectedID string
}

func newSessionState(clarifyCap int, clarifyWindow time.Duration) *sessionState {
	return &sessionState{
		kind:           StateIdle,
		clarifyLimiter: rate.NewLimiter(rate.Every(clarifyWindow), clarifyCap),
	}
}

// toIdle clears every pending artifact of the current mode.
func (s *sessionState) toIdle() {
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
	s.kind = StateIdle
	s.pending = nil
	s.draftID = ""
	s.highRisk = false
	s.confirmText = ""
}
