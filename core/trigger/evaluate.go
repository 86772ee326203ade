package trigger

import (
	"math"
	"sort"

	"github.com/tradedesk/routeopt/core/model"
)

// ratioEpsilon guards the over-threshold ordering against zero thresholds.
const ratioEpsilon = 1e-9

// Evaluate compares a live snapshot against the baseline under the configured
// thresholds and returns one TriggerDetail per variable whose absolute move
// strictly exceeds its threshold. Details are sorted descending by
// |delta|/threshold so the most over-threshold driver leads; that ordering is
// the causal explanation surfaced to the desk.
func Evaluate(baseline, current, thresholds map[string]float64) []model.TriggerDetail {
	var details []model.TriggerDetail
	for key, th := range thresholds {
		base, okB := baseline[key]
		cur, okC := current[key]
		if !okB || !okC {
			continue
		}
		delta := math.Abs(cur - base)
		if delta <= th {
			continue
		}
		details = append(details, model.TriggerDetail{
			Key:       key,
			Baseline:  base,
			Current:   cur,
			Threshold: th,
			Delta:     delta,
		})
	}
	sort.SliceStable(details, func(i, j int) bool {
		return overshoot(details[i]) > overshoot(details[j])
	})
	return details
}

func overshoot(d model.TriggerDetail) float64 {
	return d.Delta / math.Max(d.Threshold, ratioEpsilon)
}
