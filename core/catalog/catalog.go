// Package catalog holds the built-in model topologies per product group.
// Topologies are declarative structure only; live values arrive as snapshots.
package catalog

import (
	"fmt"

	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
)

// Topology returns the built-in topology for a product group.
func Topology(productGroup string) (*model.Topology, error) {
	switch productGroup {
	case thresholds.NH3DomesticBarge:
		return NH3DomesticBarge(), nil
	default:
		return nil, fmt.Errorf("catalog: no topology for product group %q", productGroup)
	}
}

// NH3DomesticBarge is the domestic ammonia barge program: NOLA-priced product
// moving from the Donaldsonville and Geismar terminals up-river to St. Louis
// and Memphis. Effective tons per barge degrade with low river stage, so the
// stage gauges carry tight perturbation bands.
func NH3DomesticBarge() *model.Topology {
	return &model.Topology{
		ProductGroup: thresholds.NH3DomesticBarge,
		Variables: []model.Variable{
			{Key: "nola_buy", Default: 310, Min: 150, Max: 700,
				Perturbation: model.Perturbation{StdDev: 2.0, Lo: 250, Hi: 450}},
			{Key: "stl_sell", Default: 365, Min: 150, Max: 800,
				Perturbation: model.Perturbation{StdDev: 2.5, Lo: 280, Hi: 520,
					Correlations: []model.Correlation{{Key: "nola_buy", Coefficient: 0.8}}}},
			{Key: "mem_sell", Default: 352, Min: 150, Max: 800,
				Perturbation: model.Perturbation{StdDev: 2.5, Lo: 270, Hi: 500,
					Correlations: []model.Correlation{{Key: "nola_buy", Coefficient: 0.75}}}},
			{Key: "barge_freight", Default: 24, Min: 10, Max: 90,
				Perturbation: model.Perturbation{StdDev: 1.0, Lo: 14, Hi: 60}},
			{Key: "natgas_price", Default: 2.8, Min: 1, Max: 15,
				Perturbation: model.Perturbation{StdDev: 0.15, Lo: 1.5, Hi: 9,
					Correlations: []model.Correlation{{Key: "nola_buy", Coefficient: 0.6}}}},
			{Key: "river_stage_cairo", Default: 18, Min: 0, Max: 55,
				Perturbation: model.Perturbation{StdDev: 0.5, Lo: 4, Hi: 45}},
			{Key: "river_stage_mem", Default: 16, Min: 0, Max: 50,
				Perturbation: model.Perturbation{StdDev: 0.5, Lo: 2, Hi: 40,
					Correlations: []model.Correlation{{Key: "river_stage_cairo", Coefficient: 0.9}}}},
			{Key: "barge_count", Default: 12, Min: 0, Max: 40,
				Perturbation: model.Perturbation{StdDev: 1.0, Lo: 4, Hi: 24}},
			{Key: "eff_tons_per_barge", Default: 1500, Min: 600, Max: 1650,
				Perturbation: model.Perturbation{StdDev: 50, Lo: 800, Hi: 1650,
					Correlations: []model.Correlation{{Key: "river_stage_cairo", Coefficient: 0.85}}}},
			{Key: "lock_delay_hours", Default: 4, Min: 0, Max: 96,
				Perturbation: model.Perturbation{StdDev: 3, Lo: 0, Hi: 72}},
			{Key: "don_supply", Default: 18000, Min: 0, Max: 60000,
				Perturbation: model.Perturbation{StdDev: 500, Lo: 8000, Hi: 32000}},
			{Key: "geis_supply", Default: 12000, Min: 0, Max: 40000,
				Perturbation: model.Perturbation{StdDev: 400, Lo: 5000, Hi: 20000}},
			{Key: "stl_demand_cap", Default: 14000, Min: 0, Max: 40000,
				Perturbation: model.Perturbation{StdDev: 300, Lo: 6000, Hi: 22000}},
			{Key: "mem_demand_cap", Default: 10000, Min: 0, Max: 30000,
				Perturbation: model.Perturbation{StdDev: 300, Lo: 4000, Hi: 16000}},
			{Key: "working_capital", Default: 9000000, Min: 0, Max: 30000000,
				Perturbation: model.Perturbation{StdDev: 0, Lo: 9000000, Hi: 9000000}},
			{Key: "stl_dock_open", Default: 1, Type: model.Boolean,
				Perturbation: model.Perturbation{FlipProb: 0.03}},
			{Key: "mem_dock_open", Default: 1, Type: model.Boolean,
				Perturbation: model.Perturbation{FlipProb: 0.03}},
			{Key: "spot_premium", Default: 8, Min: 0, Max: 60,
				Perturbation: model.Perturbation{StdDev: 1.5, Lo: 0, Hi: 35}},
			{Key: "don_outage", Default: 0, Type: model.Boolean,
				Perturbation: model.Perturbation{FlipProb: 0.02}},
			{Key: "geis_outage", Default: 0, Type: model.Boolean,
				Perturbation: model.Perturbation{FlipProb: 0.02}},
		},
		Routes: []model.Route{
			{Key: "don_stl", SellKey: "stl_sell", BuyKey: "nola_buy", FreightKey: "barge_freight",
				TransitCostPerDay: 1150, TransitDays: 9, UnitCapacity: 1500},
			{Key: "don_mem", SellKey: "mem_sell", BuyKey: "nola_buy", FreightKey: "barge_freight",
				TransitCostPerDay: 1150, TransitDays: 6, UnitCapacity: 1500},
			{Key: "geis_stl", SellKey: "stl_sell", BuyKey: "nola_buy", FreightKey: "barge_freight",
				TransitCostPerDay: 1150, TransitDays: 10, UnitCapacity: 1500},
			{Key: "geis_mem", SellKey: "mem_sell", BuyKey: "nola_buy", FreightKey: "barge_freight",
				TransitCostPerDay: 1150, TransitDays: 7, UnitCapacity: 1500},
		},
		Constraints: []model.Constraint{
			{Key: "don_supply", Type: model.ConstraintSupply, BoundKey: "don_supply",
				OutageKey: "don_outage", OutageFactor: 1,
				Routes: []string{"don_stl", "don_mem"}},
			{Key: "geis_supply", Type: model.ConstraintSupply, BoundKey: "geis_supply",
				OutageKey: "geis_outage", OutageFactor: 1,
				Routes: []string{"geis_stl", "geis_mem"}},
			{Key: "stl_demand", Type: model.ConstraintDemandCap, BoundKey: "stl_demand_cap",
				OutageKey: "stl_dock_open", OutageFactor: 1,
				Routes: []string{"don_stl", "geis_stl"}},
			{Key: "mem_demand", Type: model.ConstraintDemandCap, BoundKey: "mem_demand_cap",
				OutageKey: "mem_dock_open", OutageFactor: 1,
				Routes: []string{"don_mem", "geis_mem"}},
			{Key: "fleet", Type: model.ConstraintFleet, BoundKey: "barge_count",
				Routes: []string{"don_stl", "don_mem", "geis_stl", "geis_mem"}},
			{Key: "capital", Type: model.ConstraintCapital, BoundKey: "working_capital",
				Routes: []string{"don_stl", "don_mem", "geis_stl", "geis_mem"}},
		},
	}
}
