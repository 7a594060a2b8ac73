// Package diag is the injectable tripwire for programming-contract
// violations. Production code installs the logging sink, which records the
// violation and lets the caller fail safe; tests install the strict sink,
// which panics so contract bugs surface immediately.
package diag

import (
	"fmt"

	"github.com/blossomlabs/intent-trader/internal/observ"
)

// Sink receives invariant violations.
type Sink interface {
	Violation(check string, kv map[string]any)
}

// LogSink records violations as log events and metrics without aborting.
type LogSink struct{}

func (LogSink) Violation(check string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["check"] = check
	observ.Log("invariant_violation", kv)
	observ.IncCounter("invariant_violations_total", map[string]string{"check": check})
}

// StrictSink panics on any violation.
type StrictSink struct{}

func (StrictSink) Violation(check string, kv map[string]any) {
	panic(fmt.Sprintf("invariant violation: %s %v", check, kv))
}
