package score

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// weightTotal is the denominator of the weighted overall score. The five
	// factor weights must always sum to it.
	weightTotal = 100

	secondsPerDay = 24 * 60 * 60
)

// Weights assigns the relative contribution of each factor to the overall
// score. The values are percentages and must sum to 100.
type Weights struct {
	Repayment  int
	Collateral int
	Sybil      int
	CrossChain int
	Governance int
}

// DefaultWeights returns the canonical 40/20/20/10/10 weighting.
func DefaultWeights() Weights {
	return Weights{Repayment: 40, Collateral: 20, Sybil: 20, CrossChain: 10, Governance: 10}
}

// Validate rejects weight sets that do not sum to the required total or carry
// a negative component.
func (w Weights) Validate() error {
	for _, v := range []int{w.Repayment, w.Collateral, w.Sybil, w.CrossChain, w.Governance} {
		if v < 0 {
			return errors.New("score: factor weight must not be negative")
		}
	}
	if sum := w.Repayment + w.Collateral + w.Sybil + w.CrossChain + w.Governance; sum != weightTotal {
		return fmt.Errorf("score: factor weights sum to %d, want %d", sum, weightTotal)
	}
	return nil
}

// TierParams are the borrowing terms attached to one credit tier.
type TierParams struct {
	Name          string
	MinScore      int
	MaxLTVPercent uint64
	GraceSeconds  uint64
	APRBps        uint64
}

// BronzeAPRBand maps a score floor within the Bronze tier to an APR.
type BronzeAPRBand struct {
	MinScore int
	APRBps   uint64
}

// TierTable is the policy table mapping an overall score to borrowing terms.
// Entries are kept sorted by descending MinScore; the last entry is the
// catch-all Bronze tier whose APR is refined by the Bronze bands.
type TierTable struct {
	Tiers       []TierParams
	BronzeBands []BronzeAPRBand
}

// DefaultTierTable returns the canonical tier policy: Platinum at 90,
// Gold at 75, Silver at 60 and Bronze below, with Bronze APR widening from
// 10% down to 15% as the score drops.
func DefaultTierTable() TierTable {
	return TierTable{
		Tiers: []TierParams{
			{Name: "platinum", MinScore: 90, MaxLTVPercent: 90, GraceSeconds: 72 * 60 * 60, APRBps: 400},
			{Name: "gold", MinScore: 75, MaxLTVPercent: 80, GraceSeconds: 48 * 60 * 60, APRBps: 600},
			{Name: "silver", MinScore: 60, MaxLTVPercent: 70, GraceSeconds: 36 * 60 * 60, APRBps: 800},
			{Name: "bronze", MinScore: 0, MaxLTVPercent: 50, GraceSeconds: 24 * 60 * 60, APRBps: 1000},
		},
		BronzeBands: []BronzeAPRBand{
			{MinScore: 45, APRBps: 1000},
			{MinScore: 30, APRBps: 1200},
			{MinScore: 0, APRBps: 1500},
		},
	}
}

// Normalise sorts the table and validates coverage so lookup is a simple
// first-match scan.
func (t *TierTable) Normalise() error {
	if t == nil || len(t.Tiers) == 0 {
		return errors.New("score: tier table requires at least one tier")
	}
	sort.SliceStable(t.Tiers, func(i, j int) bool { return t.Tiers[i].MinScore > t.Tiers[j].MinScore })
	if t.Tiers[len(t.Tiers)-1].MinScore != 0 {
		return errors.New("score: tier table must cover score zero")
	}
	for _, tier := range t.Tiers {
		if tier.MaxLTVPercent == 0 || tier.MaxLTVPercent > 100 {
			return fmt.Errorf("score: tier %q ltv %d out of range", tier.Name, tier.MaxLTVPercent)
		}
		if tier.GraceSeconds == 0 {
			return fmt.Errorf("score: tier %q requires a grace window", tier.Name)
		}
	}
	sort.SliceStable(t.BronzeBands, func(i, j int) bool { return t.BronzeBands[i].MinScore > t.BronzeBands[j].MinScore })
	return nil
}

// Lookup resolves the borrowing terms for an overall score. Bronze scores are
// further refined through the APR bands.
func (t TierTable) Lookup(overall int) TierParams {
	for i, tier := range t.Tiers {
		if overall >= tier.MinScore {
			resolved := tier
			if i == len(t.Tiers)-1 {
				for _, band := range t.BronzeBands {
					if overall >= band.MinScore {
						resolved.APRBps = band.APRBps
						break
					}
				}
			}
			return resolved
		}
	}
	return t.Tiers[len(t.Tiers)-1]
}
