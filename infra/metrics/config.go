// Package metrics implements the solve-run observability sinks:
// Prometheus for scrape-based dashboards and InfluxDB for the desk's
// historical time series. Sinks compose through MultiSink.
package metrics

import (
	corelogger "github.com/tradedesk/routeopt/core/logger"
	coremetrics "github.com/tradedesk/routeopt/core/metrics"
)

// Config selects which sinks are active.
type Config struct {
	PromEnabled  bool   `json:"prom_enabled"`
	PromAddr     string `json:"prom_addr"`
	InfluxURL    string `json:"influx_url"`
	InfluxToken  string `json:"influx_token"`
	InfluxOrg    string `json:"influx_org"`
	InfluxBucket string `json:"influx_bucket"`
}

// SetDefaults applies the standard scrape address.
func (c *Config) SetDefaults() {
	if c.PromAddr == "" {
		c.PromAddr = ":9090"
	}
}

// NewSink builds the composed sink described by cfg. With nothing
// enabled the returned sink is a no-op.
func NewSink(cfg Config, log corelogger.Logger) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PromEnabled {
		prom, err := NewPromSink(nil)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, prom)
	}
	if cfg.InfluxURL != "" {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg))
	}
	switch len(sinks) {
	case 0:
		log.Warnf("no metrics sinks configured, solve runs will not be recorded")
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
