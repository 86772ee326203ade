package metrics

import coremetrics "github.com/tradedesk/routeopt/core/metrics"

// MultiSink fans solve records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSolve forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSolve(rec coremetrics.SolveRecord) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.RecordSolve(rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RecordSkip forwards skips to the sinks that count them.
func (m *MultiSink) RecordSkip(productGroup, cause string) error {
	var firstErr error
	for _, s := range m.Sinks {
		if sr, ok := s.(coremetrics.SkipRecorder); ok {
			if err := sr.RecordSkip(productGroup, cause); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
