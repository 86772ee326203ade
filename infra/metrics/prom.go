package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/tradedesk/routeopt/core/metrics"
)

// PromSink records solve runs in Prometheus metrics.
type PromSink struct {
	solves   *prometheus.CounterVec
	skips    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	profit   *prometheus.GaugeVec
}

// NewPromSink registers solve metrics on the provided Prometheus registerer.
// If reg is nil, the default registerer is used. If the collectors are already
// registered, the existing ones are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solve_runs_total",
		Help: "Total number of engine solve runs",
	}, []string{"product_group", "reason", "status", "signal"})
	skips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solve_skips_total",
		Help: "Evaluations that did not dispatch a solve",
	}, []string{"product_group", "cause"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solve_duration_seconds",
		Help:    "Wall time of one engine run including Monte Carlo",
		Buckets: prometheus.DefBuckets,
	}, []string{"product_group"})
	profit := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solve_last_profit_dollars",
		Help: "Objective value of the most recent run per product group",
	}, []string{"product_group"})

	s := &PromSink{solves: solves, skips: skips, duration: duration, profit: profit}
	for i, c := range []prometheus.Collector{solves, skips, duration, profit} {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch i {
			case 0:
				s.solves = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				s.skips = are.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				s.duration = are.ExistingCollector.(*prometheus.HistogramVec)
			case 3:
				s.profit = are.ExistingCollector.(*prometheus.GaugeVec)
			}
		}
	}
	return s, nil
}

// RecordSolve increments the run counter and observes duration and profit.
func (s *PromSink) RecordSolve(rec coremetrics.SolveRecord) error {
	s.solves.WithLabelValues(rec.ProductGroup, string(rec.Reason), rec.Status, rec.Signal).Inc()
	s.duration.WithLabelValues(rec.ProductGroup).Observe(rec.Duration.Seconds())
	if rec.Status == "optimal" {
		s.profit.WithLabelValues(rec.ProductGroup).Set(rec.Profit)
	}
	return nil
}

// RecordSkip counts an evaluation that did not dispatch.
func (s *PromSink) RecordSkip(productGroup, cause string) error {
	s.skips.WithLabelValues(productGroup, cause).Inc()
	return nil
}
