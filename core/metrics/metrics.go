// Package metrics defines the observability contract for solve runs. Sinks
// are implemented in infra/metrics (Prometheus, InfluxDB) and composed with
// MultiSink; recording is always best-effort and never blocks a solve.
package metrics

import (
	"time"

	"github.com/tradedesk/routeopt/core/model"
)

// SolveRecord is one completed or failed engine run.
type SolveRecord struct {
	ProductGroup string
	Reason       model.TriggerReason
	Status       string
	Signal       string
	Profit       float64
	UnitsUsed    int
	TriggerCount int
	Duration     time.Duration
	At           time.Time
}

// Sink records solve runs for observability purposes.
type Sink interface {
	RecordSolve(rec SolveRecord) error
}

// SkipRecorder is implemented by sinks that also count skipped evaluations
// (no material change, cooldown active, loop busy).
type SkipRecorder interface {
	RecordSkip(productGroup, cause string) error
}

// NopSink implements Sink and SkipRecorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve(SolveRecord) error { return nil }

func (NopSink) RecordSkip(string, string) error { return nil }
