// Package account provides the balance/funding collaborator the draft
// lifecycle consumes. The engine only sees the Provider interface; the sim
// implementation stands in for the real balance engines.
package account

import (
	"context"
	"errors"
	"sync"
)

// ErrInsufficientFunds means a reserve request exceeded available cash.
var ErrInsufficientFunds = errors.New("insufficient funds")

type Balance struct {
	Symbol     string  `json:"symbol"`
	BalanceUSD float64 `json:"balance_usd"`
}

// Provider is the narrow interface the sizing and execution paths consume.
type Provider interface {
	AccountValue(ctx context.Context) (float64, error)
	Balances(ctx context.Context) ([]Balance, error)
	Reserve(ctx context.Context, amountUSD float64) error
	Release(ctx context.Context, amountUSD float64)
	Deposit(ctx context.Context, amountUSD float64)
}

// SimProvider simulates an account with a cash balance and a few holdings.
type SimProvider struct {
	mu        sync.Mutex
	cashUSD   float64
	reserved  float64
	holdings  []Balance
}

func NewSimProvider(cashUSD float64) *SimProvider {
	return &SimProvider{
		cashUSD: cashUSD,
		holdings: []Balance{
			{Symbol: "USDC", BalanceUSD: cashUSD},
			{Symbol: "BTC", BalanceUSD: 0},
			{Symbol: "ETH", BalanceUSD: 0},
		},
	}
}

// AccountValue is the total account value used for risk sizing. Reserved
// margin still counts toward it.
func (p *SimProvider) AccountValue(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cashUSD, nil
}

func (p *SimProvider) Balances(ctx context.Context) ([]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Balance, len(p.holdings))
	copy(out, p.holdings)
	return out, nil
}

// Reserve claims margin for an executing draft.
func (p *SimProvider) Reserve(ctx context.Context, amountUSD float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if amountUSD > p.cashUSD-p.reserved {
		return ErrInsufficientFunds
	}
	p.reserved += amountUSD
	return nil
}

// Release returns previously reserved margin.
func (p *SimProvider) Release(ctx context.Context, amountUSD float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserved -= amountUSD
	if p.reserved < 0 {
		p.reserved = 0
	}
}

// Deposit simulates an external funding event.
func (p *SimProvider) Deposit(ctx context.Context, amountUSD float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cashUSD += amountUSD
	if len(p.holdings) > 0 && p.holdings[0].Symbol == "USDC" {
		p.holdings[0].BalanceUSD = p.cashUSD
	}
}
