package codec

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/tradedesk/routeopt/core/model"
)

// reader walks a response buffer without ever failing: reads past the end
// yield zero values. The engine legitimately omits trailing zeros, so short
// arrays are not an error once the header has parsed.
type reader struct {
	b   []byte
	off int
}

func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) u8() byte {
	if r.off+1 > len(r.b) {
		r.off = len(r.b)
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if r.off+2 > len(r.b) {
		r.off = len(r.b)
		return 0
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if r.off+4 > len(r.b) {
		r.off = len(r.b)
		return 0
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) f64() float64 {
	if r.off+8 > len(r.b) {
		r.off = len(r.b)
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.b[r.off:]))
	r.off += 8
	return v
}

func (r *reader) f64Array(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.f64()
	}
	return out
}

// minTons is the allocation below which a route is treated as unused when
// deriving transport unit counts.
const minTons = 0.5

// DecodeSingle parses a single-solve engine response against the topology the
// request was encoded from. It never panics: an unparseable header yields a
// result with status error and zeroed fields.
func DecodeSingle(b []byte, t *model.Topology) *model.SolveResult {
	res := &model.SolveResult{Status: model.StatusError}
	r := &reader{b: b}
	if r.remaining() < 1 {
		return res
	}
	switch status := r.u8(); status {
	case 0:
	case 1:
		res.Status = model.StatusInfeasible
		return res
	default:
		return res
	}
	// Optimal header carries the response's own route/constraint counts.
	if r.remaining() < 2 {
		return res
	}
	nRoutes := int(r.u8())
	nConstraints := int(r.u8())

	res.Status = model.StatusOptimal
	res.Profit = r.f64()
	res.Tons = r.f64()
	res.Cost = r.f64()
	res.ROI = r.f64()

	tons := r.f64Array(nRoutes)
	profits := r.f64Array(nRoutes)
	margins := r.f64Array(nRoutes)
	shadows := r.f64Array(nConstraints)

	res.Routes = make([]model.RouteAllocation, nRoutes)
	for i := 0; i < nRoutes; i++ {
		alloc := model.RouteAllocation{Tons: tons[i], Profit: profits[i], Margin: margins[i]}
		if i < len(t.Routes) {
			alloc.RouteKey = t.Routes[i].Key
		}
		res.Routes[i] = alloc
	}
	res.ShadowPrices = make([]model.ShadowPrice, nConstraints)
	for i := 0; i < nConstraints; i++ {
		sp := model.ShadowPrice{Price: shadows[i]}
		if i < len(t.Constraints) {
			sp.ConstraintKey = t.Constraints[i].Key
		}
		res.ShadowPrices[i] = sp
	}

	res.UnitsUsed = deriveUnits(res.Routes, t)
	if res.UnitsUsed > 0 {
		res.Efficiency = res.Profit / float64(res.UnitsUsed)
	}
	return res
}

// deriveUnits counts transport units (barges, vessels) implied by the
// allocation: ceil(tons/capacity) per route carrying more than minTons.
func deriveUnits(allocs []model.RouteAllocation, t *model.Topology) int {
	units := 0
	for i, a := range allocs {
		if a.Tons <= minTons || i >= len(t.Routes) {
			continue
		}
		unitCap := t.Routes[i].UnitCapacity
		if unitCap <= 0 {
			continue
		}
		units += int(math.Ceil(a.Tons / unitCap))
	}
	return units
}

// topSensitivities is how many (variable, correlation) pairs a distribution
// surfaces, ranked by absolute correlation.
const topSensitivities = 6

// DecodeDistribution parses a Monte Carlo engine response. Signal
// classification uses the product group's configured cutoffs. Like
// DecodeSingle it never panics on short or garbled input.
func DecodeDistribution(b []byte, t *model.Topology, cutoffs model.SignalCutoffs) *model.Distribution {
	dist := &model.Distribution{Status: model.StatusError, Signal: model.SignalNoGo}
	r := &reader{b: b}
	if r.remaining() < 1 {
		return dist
	}
	switch status := r.u8(); status {
	case 0:
	case 1:
		dist.Status = model.StatusInfeasible
		return dist
	default:
		return dist
	}
	if r.remaining() < 14 {
		return dist
	}
	nVars := int(r.u16())
	dist.Status = model.StatusOptimal
	dist.Scenarios = int(r.u32())
	dist.Feasible = int(r.u32())
	dist.Infeasible = int(r.u32())
	dist.Mean = r.f64()
	dist.StdDev = r.f64()
	dist.P5 = r.f64()
	dist.P25 = r.f64()
	dist.P50 = r.f64()
	dist.P75 = r.f64()
	dist.P95 = r.f64()
	dist.Min = r.f64()
	dist.Max = r.f64()

	idx := model.NewVariableIndex(t)
	corr := r.f64Array(nVars)
	pairs := make([]model.Sensitivity, 0, nVars)
	for i, c := range corr {
		pairs = append(pairs, model.Sensitivity{Key: idx.Key(i), Correlation: c})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].Correlation) > math.Abs(pairs[j].Correlation)
	})
	if len(pairs) > topSensitivities {
		pairs = pairs[:topSensitivities]
	}
	dist.Sensitivities = pairs

	dist.Signal = model.ClassifySignal(dist.P5, dist.P25, dist.P50, cutoffs)
	return dist
}
