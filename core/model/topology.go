package model

import (
	"fmt"
	"time"
)

// VariableType describes how a variable behaves under stochastic perturbation.
type VariableType int

const (
	// Continuous variables are perturbed with a normal draw clamped to [Lo, Hi].
	Continuous VariableType = iota
	// Boolean variables flip state with a configured probability.
	Boolean
)

// Perturbation defines the stochastic spec for one variable in Monte Carlo runs.
// For Boolean variables FlipProb is used and StdDev/Lo/Hi are ignored.
type Perturbation struct {
	StdDev       float64
	Lo           float64
	Hi           float64
	FlipProb     float64
	Correlations []Correlation
}

// Correlation couples a perturbation to another variable's draw.
type Correlation struct {
	Key         string
	Coefficient float64
}

// Variable is one live input to the optimization model, identified by a
// stable key such as "nola_buy_price" or "river_stage_memphis".
type Variable struct {
	Key          string
	Default      float64
	Min          float64
	Max          float64
	Type         VariableType
	Perturbation Perturbation
}

// Route is one tradeable origin/destination lane. Sell, Buy and Freight
// reference variable keys; Freight may be empty when the lane has no
// separate freight quote.
type Route struct {
	Key               string
	SellKey           string
	BuyKey            string
	FreightKey        string
	TransitCostPerDay float64
	TransitDays       float64
	UnitCapacity      float64
}

// ConstraintType tags the constraint variants understood by the engine.
type ConstraintType int

const (
	ConstraintSupply ConstraintType = iota
	ConstraintDemandCap
	ConstraintFleet
	ConstraintCapital
	ConstraintCustom
)

func (t ConstraintType) String() string {
	switch t {
	case ConstraintSupply:
		return "supply"
	case ConstraintDemandCap:
		return "demand_cap"
	case ConstraintFleet:
		return "fleet"
	case ConstraintCapital:
		return "capital"
	case ConstraintCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Constraint bounds a set of routes. BoundKey/BoundMinKey/OutageKey reference
// variable keys and may be empty. Coefficients are only valid for
// ConstraintCustom and must carry one entry per covered route.
type Constraint struct {
	Key          string
	Type         ConstraintType
	BoundKey     string
	BoundMinKey  string
	OutageKey    string
	OutageFactor float64
	Routes       []string
	Coefficients []float64
}

// Validate checks structural consistency of a constraint.
func (c Constraint) Validate() error {
	if c.Type < ConstraintSupply || c.Type > ConstraintCustom {
		return fmt.Errorf("constraint %s: unknown type %d", c.Key, c.Type)
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("constraint %s: covers no routes", c.Key)
	}
	if c.Type == ConstraintCustom {
		if len(c.Coefficients) != len(c.Routes) {
			return fmt.Errorf("constraint %s: %d coefficients for %d routes",
				c.Key, len(c.Coefficients), len(c.Routes))
		}
	} else if len(c.Coefficients) != 0 {
		return fmt.Errorf("constraint %s: coefficients only valid for custom type", c.Key)
	}
	return nil
}

// Topology is the declarative model structure for one product group,
// independent of current market values.
type Topology struct {
	ProductGroup string
	Variables    []Variable
	Routes       []Route
	Constraints  []Constraint
}

// Validate checks that every reference in routes and constraints resolves to
// a declared variable or route key.
func (t *Topology) Validate() error {
	vars := make(map[string]struct{}, len(t.Variables))
	for _, v := range t.Variables {
		if v.Key == "" {
			return fmt.Errorf("topology %s: variable with empty key", t.ProductGroup)
		}
		if _, dup := vars[v.Key]; dup {
			return fmt.Errorf("topology %s: duplicate variable %s", t.ProductGroup, v.Key)
		}
		vars[v.Key] = struct{}{}
	}
	routes := make(map[string]struct{}, len(t.Routes))
	for _, r := range t.Routes {
		if _, dup := routes[r.Key]; dup {
			return fmt.Errorf("topology %s: duplicate route %s", t.ProductGroup, r.Key)
		}
		routes[r.Key] = struct{}{}
		for _, ref := range []string{r.SellKey, r.BuyKey, r.FreightKey} {
			if ref == "" {
				continue
			}
			if _, ok := vars[ref]; !ok {
				return fmt.Errorf("route %s: unknown variable %s", r.Key, ref)
			}
		}
	}
	for _, c := range t.Constraints {
		if err := c.Validate(); err != nil {
			return err
		}
		for _, ref := range []string{c.BoundKey, c.BoundMinKey, c.OutageKey} {
			if ref == "" {
				continue
			}
			if _, ok := vars[ref]; !ok {
				return fmt.Errorf("constraint %s: unknown variable %s", c.Key, ref)
			}
		}
		for _, rk := range c.Routes {
			if _, ok := routes[rk]; !ok {
				return fmt.Errorf("constraint %s: unknown route %s", c.Key, rk)
			}
		}
	}
	for _, v := range t.Variables {
		for _, corr := range v.Perturbation.Correlations {
			if _, ok := vars[corr.Key]; !ok {
				return fmt.Errorf("variable %s: correlation to unknown variable %s", v.Key, corr.Key)
			}
		}
	}
	return nil
}

// Snapshot is one observation of live variable values for a product group.
type Snapshot struct {
	ProductGroup string
	Source       string
	Values       map[string]float64
	At           time.Time
}
