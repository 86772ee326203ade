package model

import "time"

// SolveMode selects between a deterministic solve and a Monte Carlo run.
type SolveMode int

const (
	ModeSingle SolveMode = iota
	ModeMonteCarlo
)

// ObjectiveMode selects the engine objective. Values are part of the wire
// contract with the engine.
type ObjectiveMode uint8

const (
	ObjectiveMaxProfit    ObjectiveMode = 0
	ObjectiveRiskAdjusted ObjectiveMode = 1
	ObjectiveMinCost      ObjectiveMode = 2
)

// ParseObjectiveMode maps a config string to an ObjectiveMode. Unknown names
// fail closed to the default max-profit objective.
func ParseObjectiveMode(s string) ObjectiveMode {
	switch s {
	case "risk_adjusted":
		return ObjectiveRiskAdjusted
	case "min_cost":
		return ObjectiveMinCost
	default:
		return ObjectiveMaxProfit
	}
}

// SolveRequest captures everything needed to dispatch one engine run.
type SolveRequest struct {
	Mode        SolveMode
	Topology    *Topology
	Vector      []float64
	Scenarios   int
	Objective   ObjectiveMode
	Lambda      float64
	ProfitFloor float64
}

// SolveStatus is the decoded engine status.
type SolveStatus int

const (
	StatusOptimal SolveStatus = iota
	StatusInfeasible
	StatusError
)

func (s SolveStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "error"
	}
}

// RouteAllocation is the engine's recommendation for one route.
type RouteAllocation struct {
	RouteKey string
	Tons     float64
	Profit   float64
	Margin   float64
}

// ShadowPrice is the dual value of one constraint: the marginal value of
// relaxing it by one unit.
type ShadowPrice struct {
	ConstraintKey string
	Price         float64
}

// SolveResult is a decoded single-solve response.
type SolveResult struct {
	Status       SolveStatus
	Profit       float64
	Tons         float64
	Cost         float64
	ROI          float64
	Routes       []RouteAllocation
	ShadowPrices []ShadowPrice
	UnitsUsed    int
	Efficiency   float64
}

// Sensitivity pairs a variable key with its profit correlation across
// Monte Carlo scenarios.
type Sensitivity struct {
	Key         string
	Correlation float64
}

// Distribution is a decoded Monte Carlo response.
type Distribution struct {
	Status        SolveStatus
	Scenarios     int
	Feasible      int
	Infeasible    int
	Mean          float64
	StdDev        float64
	P5            float64
	P25           float64
	P50           float64
	P75           float64
	P95           float64
	Min           float64
	Max           float64
	Signal        Signal
	Sensitivities []Sensitivity
}

// TriggerDetail records why one variable fired a re-optimization. It is the
// surfaced causal explanation and is persisted alongside the run.
type TriggerDetail struct {
	Key       string  `json:"key"`
	Baseline  float64 `json:"baseline"`
	Current   float64 `json:"current"`
	Threshold float64 `json:"threshold"`
	Delta     float64 `json:"delta"`
}

// TriggerReason tags what caused a run to be dispatched.
type TriggerReason string

const (
	ReasonFirstRun  TriggerReason = "first_run"
	ReasonThreshold TriggerReason = "threshold"
	ReasonFallback  TriggerReason = "fallback"
	ReasonManual    TriggerReason = "manual"
)

// Outcome is one completed engine run with its causal context, as published
// on the results topic and persisted for audit.
type Outcome struct {
	RunID        string          `json:"run_id"`
	ProductGroup string          `json:"product_group"`
	Reason       TriggerReason   `json:"reason"`
	Triggers     []TriggerDetail `json:"triggers,omitempty"`
	Result       *SolveResult    `json:"result,omitempty"`
	Distribution *Distribution   `json:"distribution,omitempty"`
	Snapshot     Snapshot        `json:"snapshot"`
	Notify       bool            `json:"notify"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}
