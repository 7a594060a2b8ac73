// Package draft owns position drafts: creation, sizing, the single
// authorized update path, and status transitions.
package draft

import (
	"time"
)

// Class is the instrument class of a draft.
type Class string

const (
	ClassPerp  Class = "perp"
	ClassEvent Class = "event"
	ClassDefi  Class = "defi"
)

// ClassFromString maps a config class string onto a Class, defaulting to perp.
func ClassFromString(s string) Class {
	switch s {
	case string(ClassEvent):
		return ClassEvent
	case string(ClassDefi):
		return ClassDefi
	default:
		return ClassPerp
	}
}

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Status is the draft lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusQueued    Status = "queued"
	StatusExecuting Status = "executing"
	StatusExecuted  Status = "executed"
	StatusBlocked   Status = "blocked"
	StatusClosed    Status = "closed"
)

// Outcome is the realized result attached when an executed draft closes.
type Outcome struct {
	PnLUSD float64 `json:"pnl_usd"`
	Win    bool    `json:"win"`
}

// Draft is a user-reviewable position proposal. Market and Class are fixed
// at creation; sizing fields change only through Manager.Update.
type Draft struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	Class       Class    `json:"class"`
	Side        Side     `json:"side"`
	Market      string   `json:"market"`
	RiskPct     float64  `json:"risk_pct"`
	Leverage    float64  `json:"leverage"`
	MarginUSD   float64  `json:"margin_usd"`
	NotionalUSD float64  `json:"notional_usd"`
	StopLoss    float64  `json:"stop_loss,omitempty"`
	TakeProfit  float64  `json:"take_profit,omitempty"`
	Status      Status   `json:"status"`
	OriginKey   string   `json:"origin_key"`
	Outcome     *Outcome `json:"outcome,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether the draft can no longer progress.
func (d *Draft) Terminal() bool {
	return d.Status == StatusExecuted || d.Status == StatusClosed
}
