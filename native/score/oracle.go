package score

import (
	"errors"
	"math/big"
	"time"

	"creditchain/native/registry"
)

// Sybil-resistance raw scoring constants. The raw value spans
// [-450, +295]: KYC contributes +/-150, wallet age penalises up to -300,
// staking bonuses reach +100 and loan activity +45. The normalised form maps
// that span linearly onto [0,100].
const (
	sybilRawMin = -450
	sybilRawMax = 295

	kycVerifiedBonus    = 150
	kycUnverifiedMalus  = -150
	agePenaltyUnder7d   = -300
	agePenaltyUnder30d  = -150
	agePenaltyUnder90d  = -50
	activityBonusTen    = 45
	activityBonusFive   = 30
	activityBonusOne    = 15
	liquidationPenalty  = 20
	highLTVPenaltyMax   = 40
	nearMaxRatioPercent = 120
)

// Staking bonus thresholds in whole stake tokens (18 decimals applied at
// comparison time).
var (
	stakeTierHigh = big.NewInt(10_000)
	stakeTierMid  = big.NewInt(1_000)
	stakeTierLow  = big.NewInt(100)
	tokenUnit     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

var ErrNilView = errors.New("score: registry view not configured")

// RegistryView is the read-only slice of registry state the oracle consumes.
type RegistryView interface {
	LoanIDs(subject [20]byte) ([]uint64, error)
	Loan(id uint64) (*registry.LoanRecord, bool, error)
	Collateral(id uint64) (*registry.CollateralData, bool, error)
	Assets(subject [20]byte) ([]string, error)
	StakeOf(subject [20]byte) (*registry.StakeInfo, error)
	KYCOf(subject [20]byte) (*registry.KYCProof, bool, error)
	GovernanceOf(subject [20]byte) (*registry.GovernanceActivity, error)
	CrossChainOf(subject [20]byte) ([]*registry.CrossChainScore, error)
	FirstSeen(subject [20]byte) (uint64, error)
}

// Oracle derives credit scores from registry state. It holds policy
// configuration only; every ComputeScore call reads the registry fresh.
type Oracle struct {
	view    RegistryView
	weights Weights
	tiers   TierTable
	nowFn   func() time.Time
}

// NewOracle constructs an oracle over the registry view with the supplied
// policy. The weights and tier table must have been validated/normalised.
func NewOracle(view RegistryView, weights Weights, tiers TierTable) *Oracle {
	return &Oracle{
		view:    view,
		weights: weights,
		tiers:   tiers,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the wall clock. Nil restores the default UTC clock.
func (o *Oracle) SetNowFunc(now func() time.Time) {
	if o == nil {
		return
	}
	if now == nil {
		o.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	o.nowFn = now
}

// TierFor resolves the borrowing terms for an overall score.
func (o *Oracle) TierFor(overall int) TierParams {
	return o.tiers.Lookup(overall)
}

// ComputeScore derives the subject's five-factor breakdown. The result is a
// pure function of registry state at call time.
func (o *Oracle) ComputeScore(subject [20]byte) (*Breakdown, error) {
	if o == nil || o.view == nil {
		return nil, ErrNilView
	}
	loans, err := o.loadLoans(subject)
	if err != nil {
		return nil, err
	}
	now := uint64(o.nowFn().Unix())

	b := &Breakdown{}
	b.Repayment = repaymentScore(loans)
	b.Collateral, err = o.collateralScore(subject, loans)
	if err != nil {
		return nil, err
	}
	b.SybilRaw, err = o.sybilRaw(subject, len(loans), now)
	if err != nil {
		return nil, err
	}
	b.Sybil = NormalizeSybil(b.SybilRaw)
	b.CrossChain, err = o.crossChainScore(subject)
	if err != nil {
		return nil, err
	}
	b.Governance, err = o.governanceScore(subject, now)
	if err != nil {
		return nil, err
	}

	w := o.weights
	b.Overall = (w.Repayment*b.Repayment +
		w.Collateral*b.Collateral +
		w.Sybil*b.Sybil +
		w.CrossChain*b.CrossChain +
		w.Governance*b.Governance) / weightTotal
	return b, nil
}

type loanView struct {
	record   *registry.LoanRecord
	snapshot *registry.CollateralData
}

func (o *Oracle) loadLoans(subject [20]byte) ([]loanView, error) {
	ids, err := o.view.LoanIDs(subject)
	if err != nil {
		return nil, err
	}
	loans := make([]loanView, 0, len(ids))
	for _, id := range ids {
		record, ok, err := o.view.Loan(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		snapshot, _, err := o.view.Collateral(id)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loanView{record: record, snapshot: snapshot})
	}
	return loans, nil
}

// repaymentScore rewards the repaid-loan rate and punishes each liquidation
// with a flat deduction that can drive the factor to zero.
func repaymentScore(loans []loanView) int {
	if len(loans) == 0 {
		return 50
	}
	repaid, liquidated := 0, 0
	for _, l := range loans {
		switch l.record.Status {
		case registry.LoanStatusRepaid:
			repaid++
		case registry.LoanStatusLiquidated:
			liquidated++
		}
	}
	rate := repaid * 100 / len(loans)
	return clamp(rate-liquidated*liquidationPenalty, 0, 100)
}

// collateralScore maps the historical average collateralisation ratio onto a
// band score, penalises borrowing near the maximum LTV and rewards collateral
// diversity.
func (o *Oracle) collateralScore(subject [20]byte, loans []loanView) (int, error) {
	active := 0
	for _, l := range loans {
		if l.record.Status == registry.LoanStatusActive {
			active++
		}
	}
	totalCollateral := new(big.Int)
	totalBorrowed := new(big.Int)
	snapshots, nearMax := 0, 0
	for _, l := range loans {
		if l.snapshot == nil {
			continue
		}
		snapshots++
		totalCollateral.Add(totalCollateral, l.snapshot.CollateralValueUSD)
		totalBorrowed.Add(totalBorrowed, l.snapshot.PrincipalValueUSD)
		ratio := snapshotRatio(l.snapshot)
		if ratio < nearMaxRatioPercent {
			nearMax++
		}
	}
	if len(loans) == 0 || active == 0 || snapshots == 0 || totalBorrowed.Sign() == 0 {
		return 50, nil
	}

	avgRatio := new(big.Int).Mul(totalCollateral, big.NewInt(100))
	avgRatio.Quo(avgRatio, totalBorrowed)
	var base int
	switch {
	case avgRatio.Cmp(big.NewInt(200)) >= 0:
		base = 100
	case avgRatio.Cmp(big.NewInt(150)) >= 0:
		base = 75
	case avgRatio.Cmp(big.NewInt(120)) >= 0:
		base = 50
	case avgRatio.Cmp(big.NewInt(100)) >= 0:
		base = 25
	default:
		base = 0
	}

	base -= highLTVPenaltyMax * nearMax / snapshots

	assets, err := o.view.Assets(subject)
	if err != nil {
		return 0, err
	}
	switch {
	case len(assets) >= 3:
		base += 20
	case len(assets) >= 2:
		base += 10
	}
	return clamp(base, 0, 100), nil
}

// snapshotRatio returns collateral*100/principal for one snapshot, saturating
// at a large value when the principal is zero.
func snapshotRatio(s *registry.CollateralData) int {
	if s.PrincipalValueUSD == nil || s.PrincipalValueUSD.Sign() == 0 {
		return 1 << 30
	}
	ratio := new(big.Int).Mul(s.CollateralValueUSD, big.NewInt(100))
	ratio.Quo(ratio, s.PrincipalValueUSD)
	if !ratio.IsInt64() {
		return 1 << 30
	}
	return int(ratio.Int64())
}

func (o *Oracle) sybilRaw(subject [20]byte, loanCount int, now uint64) (int64, error) {
	raw := int64(0)

	proof, ok, err := o.view.KYCOf(subject)
	if err != nil {
		return 0, err
	}
	if ok && proof.ActiveAt(now) {
		raw += kycVerifiedBonus
	} else {
		raw += kycUnverifiedMalus
	}

	firstSeen, err := o.view.FirstSeen(subject)
	if err != nil {
		return 0, err
	}
	var ageDays uint64
	if firstSeen > 0 && now > firstSeen {
		ageDays = (now - firstSeen) / secondsPerDay
	}
	switch {
	case firstSeen == 0 || ageDays < 7:
		raw += agePenaltyUnder7d
	case ageDays < 30:
		raw += agePenaltyUnder30d
	case ageDays < 90:
		raw += agePenaltyUnder90d
	}

	stake, err := o.view.StakeOf(subject)
	if err != nil {
		return 0, err
	}
	raw += stakeBonus(stake.Amount)

	switch {
	case loanCount >= 10:
		raw += activityBonusTen
	case loanCount >= 5:
		raw += activityBonusFive
	case loanCount >= 1:
		raw += activityBonusOne
	}
	return raw, nil
}

func stakeBonus(amount *big.Int) int64 {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	whole := new(big.Int).Quo(amount, tokenUnit)
	switch {
	case whole.Cmp(stakeTierHigh) >= 0:
		return 100
	case whole.Cmp(stakeTierMid) >= 0:
		return 50
	case whole.Cmp(stakeTierLow) >= 0:
		return 25
	default:
		return 0
	}
}

// NormalizeSybil maps the signed raw sybil score linearly onto [0,100].
func NormalizeSybil(raw int64) int {
	if raw <= sybilRawMin {
		return 0
	}
	if raw >= sybilRawMax {
		return 100
	}
	return int((raw - sybilRawMin) * 100 / (sybilRawMax - sybilRawMin))
}

// crossChainScore averages the imported per-chain scores, maps the average
// through a band table and rewards multi-chain presence.
func (o *Oracle) crossChainScore(subject [20]byte) (int, error) {
	entries, err := o.view.CrossChainOf(subject)
	if err != nil {
		return 0, err
	}
	sum, chains := uint64(0), 0
	for _, e := range entries {
		if e.UpdatedAt == 0 {
			continue
		}
		sum += e.Score
		chains++
	}
	if chains == 0 {
		return 0, nil
	}
	avg := sum / uint64(chains)
	var base int
	switch {
	case avg >= 80:
		base = 100
	case avg >= 60:
		base = 75
	case avg >= 40:
		base = 50
	default:
		base = 25
	}
	switch {
	case chains >= 3:
		base += 20
	case chains >= 2:
		base += 10
	}
	return clamp(base, 0, 100), nil
}

// governanceScore stacks vote-count, proposal-count and vote-recency tiers.
func (o *Oracle) governanceScore(subject [20]byte, now uint64) (int, error) {
	activity, err := o.view.GovernanceOf(subject)
	if err != nil {
		return 0, err
	}
	score := 0
	switch {
	case activity.Votes >= 50:
		score += 40
	case activity.Votes >= 20:
		score += 30
	case activity.Votes >= 5:
		score += 20
	case activity.Votes >= 1:
		score += 10
	}
	switch {
	case activity.Proposals >= 10:
		score += 30
	case activity.Proposals >= 3:
		score += 20
	case activity.Proposals >= 1:
		score += 10
	}
	if activity.LastVoteAt > 0 && now >= activity.LastVoteAt {
		days := (now - activity.LastVoteAt) / secondsPerDay
		switch {
		case days <= 30:
			score += 30
		case days <= 90:
			score += 20
		case days <= 180:
			score += 10
		}
	}
	return clamp(score, 0, 100), nil
}
