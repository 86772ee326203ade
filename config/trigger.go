package config

import (
	"fmt"
	"time"

	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/trigger"
)

// TriggerConfig tunes the auto-trigger loops shared across product groups.
type TriggerConfig struct {
	// Objective selects the engine objective: "max_profit", "risk_adjusted"
	// or "min_cost".
	Objective string `json:"objective"`
	// Lambda is the risk-aversion weight for the risk_adjusted objective.
	Lambda float64 `json:"lambda"`
	// ProfitFloor is the minimum acceptable profit for the min_cost objective.
	ProfitFloor float64 `json:"profit_floor"`
	// NotifyMinProfitDelta suppresses notifications for profit moves below
	// this many dollars.
	NotifyMinProfitDelta float64 `json:"notify_min_profit_delta"`
	// FirstDelaySeconds schedules the initial evaluation after startup.
	FirstDelaySeconds int `json:"first_delay_seconds"`
	// SideEffectTimeoutSeconds bounds the async audit and narrative calls.
	SideEffectTimeoutSeconds int `json:"side_effect_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *TriggerConfig) SetDefaults() {
	if c.Objective == "" {
		c.Objective = "max_profit"
	}
	if c.FirstDelaySeconds <= 0 {
		c.FirstDelaySeconds = 5
	}
	if c.SideEffectTimeoutSeconds <= 0 {
		c.SideEffectTimeoutSeconds = 30
	}
}

// Validate checks the objective selection.
func (c TriggerConfig) Validate() error {
	switch c.Objective {
	case "max_profit", "risk_adjusted", "min_cost":
	default:
		return fmt.Errorf("unknown objective %s", c.Objective)
	}
	if c.Objective == "risk_adjusted" && c.Lambda <= 0 {
		return fmt.Errorf("risk_adjusted objective requires a positive lambda")
	}
	return nil
}

// Options converts the config into loop options.
func (c TriggerConfig) Options() trigger.Options {
	return trigger.Options{
		FirstDelay:           time.Duration(c.FirstDelaySeconds) * time.Second,
		NotifyMinProfitDelta: c.NotifyMinProfitDelta,
		Objective:            model.ParseObjectiveMode(c.Objective),
		Lambda:               c.Lambda,
		ProfitFloor:          c.ProfitFloor,
		SideEffectTimeout:    time.Duration(c.SideEffectTimeoutSeconds) * time.Second,
	}
}
