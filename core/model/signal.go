package model

// Signal is the coarse decision classification of a profit distribution.
type Signal int

const (
	SignalNoGo Signal = iota
	SignalWeak
	SignalCautious
	SignalGo
	SignalStrongGo
)

// String returns the canonical lowercase name used in persistence and topics.
func (s Signal) String() string {
	switch s {
	case SignalStrongGo:
		return "strong_go"
	case SignalGo:
		return "go"
	case SignalCautious:
		return "cautious"
	case SignalWeak:
		return "weak"
	case SignalNoGo:
		return "no_go"
	default:
		return "unknown"
	}
}

// SignalCutoffs holds the per-product-group profit thresholds that drive
// signal classification. Zero values are meaningful: the default cautious and
// weak cutoffs are zero profit.
type SignalCutoffs struct {
	StrongGo float64
	Go       float64
	Cautious float64
	Weak     float64
}

// ClassifySignal maps distribution percentiles to a Signal with strict
// precedence: a p5 above the strong-go cutoff wins over everything else,
// then p25 against go, then p50 against cautious, then p50 against weak.
func ClassifySignal(p5, p25, p50 float64, c SignalCutoffs) Signal {
	switch {
	case p5 > c.StrongGo:
		return SignalStrongGo
	case p25 > c.Go:
		return SignalGo
	case p50 > c.Cautious:
		return SignalCautious
	case p50 > c.Weak:
		return SignalWeak
	default:
		return SignalNoGo
	}
}
