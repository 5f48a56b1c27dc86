package score

// Breakdown is the ephemeral result of one scoring pass. It is recomputed on
// every call and never persisted, so it always reflects the latest registry
// state.
type Breakdown struct {
	Repayment  int
	Collateral int
	SybilRaw   int64
	Sybil      int
	CrossChain int
	Governance int
	Overall    int
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
