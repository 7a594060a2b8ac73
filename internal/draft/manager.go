package draft

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blossomlabs/intent-trader/internal/diag"
	"github.com/blossomlabs/intent-trader/internal/observ"
)

var (
	// ErrMarketRequired means a caller tried to create a draft without a
	// resolved market. Callers must clarify first, never default.
	ErrMarketRequired = errors.New("draft requires a resolved market")

	// ErrConcurrentDraft means another draft of the same instrument class is
	// still pending in this session.
	ErrConcurrentDraft = errors.New("a pending draft already exists for this instrument class")

	// ErrBadTransition means a status change outside the allowed edges.
	ErrBadTransition = errors.New("illegal draft status transition")

	// ErrNotFound means no draft with that id exists.
	ErrNotFound = errors.New("draft not found")
)

// allowed status edges; everything else is rejected and reported
// closed is reachable from queued/executing only through the global reset
// cancel path
var transitions = map[Status][]Status{
	StatusDraft:     {StatusQueued, StatusClosed},
	StatusQueued:    {StatusExecuting, StatusBlocked, StatusClosed},
	StatusExecuting: {StatusExecuted, StatusBlocked, StatusClosed},
	StatusBlocked:   {StatusQueued, StatusClosed},
	StatusExecuted:  {StatusClosed},
}

// Manager is the draft lifecycle owner. Every mutation of a draft goes
// through Create, Update, Transition, or Close; nothing else touches one.
type Manager struct {
	mu     sync.RWMutex
	drafts map[string]*Draft
	order  []string // creation order per listing
	sink   diag.Sink

	defaultRiskPct  float64
	defaultLeverage float64
}

func NewManager(defaultRiskPct, defaultLeverage float64, sink diag.Sink) *Manager {
	if sink == nil {
		sink = diag.LogSink{}
	}
	return &Manager{
		drafts:          make(map[string]*Draft),
		sink:            sink,
		defaultRiskPct:  defaultRiskPct,
		defaultLeverage: defaultLeverage,
	}
}

// CreateSpec carries everything needed to open a new draft.
type CreateSpec struct {
	SessionID  string
	Class      Class
	Side       Side
	Market     string
	Input      SizingInput
	StopLoss   float64
	TakeProfit float64
	OriginKey  string
}

// Create opens a new draft in draft status. The market must already be
// resolved and at most one draft per instrument class may be pending.
func (m *Manager) Create(spec CreateSpec, accountValue float64) (*Draft, error) {
	if spec.Market == "" {
		m.sink.Violation("create_without_market", map[string]any{"session": spec.SessionID})
		return nil, ErrMarketRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d := m.activeLocked(spec.SessionID, spec.Class); d != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrConcurrentDraft, d.Market, d.ID)
	}

	sz, err := DeriveSizing(spec.Input, accountValue, m.defaultRiskPct, m.defaultLeverage)
	if err != nil {
		return nil, err
	}

	side := spec.Side
	if side == "" {
		side = SideLong
	}
	now := time.Now().UTC()
	d := &Draft{
		ID:          uuid.NewString(),
		SessionID:   spec.SessionID,
		Class:       spec.Class,
		Side:        side,
		Market:      spec.Market,
		RiskPct:     sz.RiskPct,
		Leverage:    sz.Leverage,
		MarginUSD:   sz.MarginUSD,
		NotionalUSD: sz.NotionalUSD,
		StopLoss:    spec.StopLoss,
		TakeProfit:  spec.TakeProfit,
		Status:      StatusDraft,
		OriginKey:   spec.OriginKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.drafts[d.ID] = d
	m.order = append(m.order, d.ID)

	observ.Log("draft_created", map[string]any{
		"draft_id": d.ID, "session": d.SessionID, "market": d.Market,
		"side": string(d.Side), "margin_usd": d.MarginUSD, "notional_usd": d.NotionalUSD,
	})
	observ.IncCounter("drafts_created_total", map[string]string{"class": string(d.Class)})
	return copyDraft(d), nil
}

// Update is the authorized mutation path for sizing and protective fields.
// It re-derives margin and notional whenever risk, margin, or leverage
// change, keeping exactly one sizing input authoritative.
type Update struct {
	RiskPct    *float64
	MarginUSD  *float64
	Leverage   *float64
	StopLoss   *float64
	TakeProfit *float64
	Side       *Side
}

func (m *Manager) Update(id string, u Update, accountValue float64) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status == StatusClosed {
		return nil, fmt.Errorf("%w: draft %s is closed", ErrBadTransition, id)
	}

	if u.RiskPct != nil || u.MarginUSD != nil || u.Leverage != nil {
		in := SizingInput{RiskPct: u.RiskPct, MarginUSD: u.MarginUSD, Leverage: u.Leverage}
		if in.Leverage == nil {
			in.Leverage = &d.Leverage
		}
		// neither sizing input supplied: keep risk authoritative so a bare
		// leverage change re-derives notional only
		if in.RiskPct == nil && in.MarginUSD == nil {
			in.RiskPct = &d.RiskPct
		}
		sz, err := DeriveSizing(in, accountValue, m.defaultRiskPct, m.defaultLeverage)
		if err != nil {
			return nil, err
		}
		d.RiskPct, d.Leverage = sz.RiskPct, sz.Leverage
		d.MarginUSD, d.NotionalUSD = sz.MarginUSD, sz.NotionalUSD
	}
	if u.StopLoss != nil {
		d.StopLoss = *u.StopLoss
	}
	if u.TakeProfit != nil {
		d.TakeProfit = *u.TakeProfit
	}
	if u.Side != nil {
		d.Side = *u.Side
	}
	d.UpdatedAt = time.Now().UTC()

	observ.Log("draft_updated", map[string]any{
		"draft_id": d.ID, "margin_usd": d.MarginUSD, "notional_usd": d.NotionalUSD,
		"leverage": d.Leverage, "risk_pct": d.RiskPct,
	})
	observ.IncCounter("drafts_updated_total", nil)
	return copyDraft(d), nil
}

// Transition moves a draft along the allowed status edges and recomputes
// the aggregate exposure gauge.
func (m *Manager) Transition(id string, to Status) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	// callers probe edges and handle the error; a rejected edge is a normal
	// outcome, not a contract breach
	if !edgeAllowed(d.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	m.recomputeExposureLocked()

	observ.Log("draft_status", map[string]any{"draft_id": id, "status": string(to)})
	observ.IncCounter("draft_transitions_total", map[string]string{"to": string(to)})
	return copyDraft(d), nil
}

// Close settles an executed draft with its realized outcome, or discards a
// pending one.
func (m *Manager) Close(id string, out *Outcome) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !edgeAllowed(d.Status, StatusClosed) {
		return nil, fmt.Errorf("%w: %s -> closed", ErrBadTransition, d.Status)
	}
	d.Status = StatusClosed
	d.Outcome = out
	d.UpdatedAt = time.Now().UTC()
	m.recomputeExposureLocked()
	observ.Log("draft_closed", map[string]any{"draft_id": id})
	return copyDraft(d), nil
}

// Get returns a copy of the draft.
func (m *Manager) Get(id string) (*Draft, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, false
	}
	return copyDraft(d), true
}

// Active returns the pending (draft-status) draft for a class, if any.
func (m *Manager) Active(sessionID string, class Class) (*Draft, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := m.activeLocked(sessionID, class)
	if d == nil {
		return nil, false
	}
	return copyDraft(d), true
}

// FindByMarket returns the most recent non-closed draft on a market in this
// session; used to resolve update targets like "the BTC position".
func (m *Manager) FindByMarket(sessionID, market string) (*Draft, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		d := m.drafts[m.order[i]]
		if d.SessionID == sessionID && d.Market == market && d.Status != StatusClosed {
			return copyDraft(d), true
		}
	}
	return nil, false
}

// List returns all drafts for a session in creation order.
func (m *Manager) List(sessionID string) []*Draft {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Draft
	for _, id := range m.order {
		if d := m.drafts[id]; d.SessionID == sessionID {
			out = append(out, copyDraft(d))
		}
	}
	return out
}

func (m *Manager) activeLocked(sessionID string, class Class) *Draft {
	for i := len(m.order) - 1; i >= 0; i-- {
		d := m.drafts[m.order[i]]
		if d.SessionID == sessionID && d.Class == class && d.Status == StatusDraft {
			return d
		}
	}
	return nil
}

func (m *Manager) recomputeExposureLocked() {
	var total float64
	for _, d := range m.drafts {
		if d.Status == StatusExecuted {
			total += d.NotionalUSD
		}
	}
	observ.SetGauge("exposure_usd", total, nil)
}

func edgeAllowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func copyDraft(d *Draft) *Draft {
	c := *d
	if d.Outcome != nil {
		o := *d.Outcome
		c.Outcome = &o
	}
	return &c
}
