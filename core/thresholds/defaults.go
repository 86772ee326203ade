package thresholds

import "time"

// Product groups known to the desk. The barge group ships with a full
// built-in topology; the others start disabled until their topologies are
// configured.
const (
	NH3DomesticBarge = "nh3_domestic_barge"
	NH3International = "nh3_international"
	UANDomestic      = "uan_domestic"
	UreaExport       = "urea_export"
)

// Defaults returns the hardcoded fallback configuration used when the durable
// store is empty or unavailable. Thresholds reflect decision-relevant moves:
// NH3 prices trade in $2/ton increments, half a foot of river stage can shift
// a barge capacity tier.
func Defaults() []Config {
	return []Config{
		{
			ProductGroup: NH3DomesticBarge,
			Enabled:      true,
			Thresholds: map[string]float64{
				"nola_buy":          2.0,
				"stl_sell":          2.0,
				"mem_sell":          2.0,
				"barge_freight":     1.5,
				"natgas_price":      0.25,
				"river_stage_cairo": 0.5,
				"river_stage_mem":   0.5,
				"barge_count":       1.0,
				"lock_delay_hours":  6.0,
			},
			PollIntervals: map[string]time.Duration{
				"markets": 5 * time.Minute,
				"freight": 10 * time.Minute,
				"usgs":    15 * time.Minute,
				"fleet":   10 * time.Minute,
				"eia":     time.Hour,
			},
			Cooldown:  30 * time.Minute,
			Scenarios: 1000,
		},
		{ProductGroup: NH3International, Cooldown: 30 * time.Minute, Scenarios: 1000},
		{ProductGroup: UANDomestic, Cooldown: 30 * time.Minute, Scenarios: 1000},
		{ProductGroup: UreaExport, Cooldown: 30 * time.Minute, Scenarios: 1000},
	}
}
