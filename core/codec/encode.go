// Package codec implements the binary descriptor format exchanged with the
// external optimization engine. All multi-byte values are little-endian by
// protocol contract, regardless of host byte order.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tradedesk/routeopt/core/model"
)

// NoneIndex is the reserved byte meaning "no variable reference".
const NoneIndex = 0xFF

// MaxIndexSpace is the largest number of variables, routes or constraints a
// topology may carry: single-byte references must never collide with NoneIndex.
const MaxIndexSpace = 255

var (
	// ErrIndexSpace reports a topology too large for single-byte indexing.
	ErrIndexSpace = fmt.Errorf("codec: topology exceeds %d-entry index space", MaxIndexSpace)
	// ErrUnknownKey reports a reference to an undeclared variable or route.
	ErrUnknownKey = fmt.Errorf("codec: unknown key reference")
)

// Encode serializes a topology and objective parameters into the canonical
// engine descriptor. It is pure: identical inputs yield identical bytes.
func Encode(t *model.Topology, obj model.ObjectiveMode, lambda, profitFloor float64) ([]byte, error) {
	if len(t.Variables) > MaxIndexSpace || len(t.Routes) > MaxIndexSpace || len(t.Constraints) > MaxIndexSpace {
		return nil, ErrIndexSpace
	}
	varIdx := model.NewVariableIndex(t)
	routeIdx := make(map[string]int, len(t.Routes))
	for i, r := range t.Routes {
		routeIdx[r.Key] = i
	}

	switch obj {
	case model.ObjectiveMaxProfit, model.ObjectiveRiskAdjusted, model.ObjectiveMinCost:
	default:
		// Unknown objective modes fail closed to the default objective.
		obj = model.ObjectiveMaxProfit
	}

	buf := &bytes.Buffer{}
	writeU16(buf, uint16(len(t.Variables)))
	buf.WriteByte(byte(len(t.Routes)))
	buf.WriteByte(byte(len(t.Constraints)))
	buf.WriteByte(byte(obj))
	writeF64(buf, lambda)
	writeF64(buf, profitFloor)

	for _, r := range t.Routes {
		for _, ref := range []string{r.SellKey, r.BuyKey, r.FreightKey} {
			b, err := varRef(varIdx, ref)
			if err != nil {
				return nil, fmt.Errorf("route %s: %w", r.Key, err)
			}
			buf.WriteByte(b)
		}
		writeF64(buf, r.TransitCostPerDay)
		writeF64(buf, r.TransitDays)
		writeF64(buf, r.UnitCapacity)
	}

	for _, c := range t.Constraints {
		buf.WriteByte(byte(c.Type))
		for _, ref := range []string{c.BoundKey, c.BoundMinKey, c.OutageKey} {
			b, err := varRef(varIdx, ref)
			if err != nil {
				return nil, fmt.Errorf("constraint %s: %w", c.Key, err)
			}
			buf.WriteByte(b)
		}
		writeF64(buf, c.OutageFactor)
		buf.WriteByte(byte(len(c.Routes)))
		for _, rk := range c.Routes {
			ri, ok := routeIdx[rk]
			if !ok {
				return nil, fmt.Errorf("constraint %s: route %q: %w", c.Key, rk, ErrUnknownKey)
			}
			buf.WriteByte(byte(ri))
		}
		if c.Type == model.ConstraintCustom {
			for _, coef := range c.Coefficients {
				writeF64(buf, coef)
			}
		}
	}

	for _, v := range t.Variables {
		if v.Type == model.Boolean {
			writeF64(buf, 0)
			writeF64(buf, v.Perturbation.FlipProb)
			writeF64(buf, 0)
			buf.WriteByte(0)
			continue
		}
		writeF64(buf, v.Perturbation.StdDev)
		writeF64(buf, v.Perturbation.Lo)
		writeF64(buf, v.Perturbation.Hi)
		buf.WriteByte(byte(len(v.Perturbation.Correlations)))
		for _, corr := range v.Perturbation.Correlations {
			b, err := varRef(varIdx, corr.Key)
			if err != nil {
				return nil, fmt.Errorf("variable %s: %w", v.Key, err)
			}
			buf.WriteByte(b)
			writeF64(buf, corr.Coefficient)
		}
	}

	return buf.Bytes(), nil
}

func varRef(idx *model.VariableIndex, key string) (byte, error) {
	if key == "" {
		return NoneIndex, nil
	}
	i, ok := idx.Position(key)
	if !ok {
		return 0, fmt.Errorf("variable %q: %w", key, ErrUnknownKey)
	}
	return byte(i), nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeF64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}
