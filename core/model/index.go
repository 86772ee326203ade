package model

// VariableIndex assigns each topology variable a stable position, used
// symmetrically for binary encoding and for mapping decoded sensitivity
// arrays back to domain keys. Positions follow topology declaration order.
type VariableIndex struct {
	keys []string
	pos  map[string]int
	defs []float64
}

// NewVariableIndex builds the index from the topology's variable order.
func NewVariableIndex(t *Topology) *VariableIndex {
	idx := &VariableIndex{
		keys: make([]string, len(t.Variables)),
		pos:  make(map[string]int, len(t.Variables)),
		defs: make([]float64, len(t.Variables)),
	}
	for i, v := range t.Variables {
		idx.keys[i] = v.Key
		idx.pos[v.Key] = i
		idx.defs[i] = v.Default
	}
	return idx
}

// Len returns the number of indexed variables.
func (x *VariableIndex) Len() int { return len(x.keys) }

// Position returns the index of key, if present.
func (x *VariableIndex) Position(key string) (int, bool) {
	i, ok := x.pos[key]
	return i, ok
}

// Key returns the variable key at position i, or "" when out of range.
func (x *VariableIndex) Key(i int) string {
	if i < 0 || i >= len(x.keys) {
		return ""
	}
	return x.keys[i]
}

// Keys returns the ordered key list.
func (x *VariableIndex) Keys() []string {
	out := make([]string, len(x.keys))
	copy(out, x.keys)
	return out
}

// Vector materializes a snapshot into engine order. Variables missing from
// the snapshot fall back to their topology defaults, so the vector length
// always equals the variable count.
func (x *VariableIndex) Vector(values map[string]float64) []float64 {
	vec := make([]float64, len(x.keys))
	copy(vec, x.defs)
	for k, v := range values {
		if i, ok := x.pos[k]; ok {
			vec[i] = v
		}
	}
	return vec
}
