package trigger

import (
	"gonum.org/v1/gonum/stat"

	"github.com/tradedesk/routeopt/core/model"
)

// historySize bounds the in-memory run history per product group.
const historySize = 20

// History keeps the most recent accepted outcomes, newest last.
type History struct {
	items []*model.Outcome
}

// Add appends an outcome, evicting the oldest past capacity.
func (h *History) Add(o *model.Outcome) {
	h.items = append(h.items, o)
	if len(h.items) > historySize {
		h.items = h.items[len(h.items)-historySize:]
	}
}

// Len returns the number of retained outcomes.
func (h *History) Len() int { return len(h.items) }

// Items returns the retained outcomes, newest last.
func (h *History) Items() []*model.Outcome {
	out := make([]*model.Outcome, len(h.items))
	copy(out, h.items)
	return out
}

// Latest returns the most recent outcome or nil.
func (h *History) Latest() *model.Outcome {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[len(h.items)-1]
}

// ProfitStats returns mean and sample standard deviation of accepted run
// profits, a quick drift indicator surfaced in loop status.
func (h *History) ProfitStats() (mean, stddev float64) {
	var profits []float64
	for _, o := range h.items {
		if o.Result != nil && o.Result.Status == model.StatusOptimal {
			profits = append(profits, o.Result.Profit)
		}
	}
	if len(profits) == 0 {
		return 0, 0
	}
	mean = stat.Mean(profits, nil)
	if len(profits) > 1 {
		stddev = stat.StdDev(profits, nil)
	}
	return mean, stddev
}
