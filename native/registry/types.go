package registry

import "math/big"

// LoanStatus tracks the lifecycle of a registered loan. Transitions are
// monotonic: Active -> Repaid or Active -> Liquidated, both terminal.
type LoanStatus uint8

const (
	LoanStatusActive     LoanStatus = 1
	LoanStatusRepaid     LoanStatus = 2
	LoanStatusLiquidated LoanStatus = 3
)

// String renders the canonical lowercase status label.
func (s LoanStatus) String() string {
	switch s {
	case LoanStatusActive:
		return "active"
	case LoanStatusRepaid:
		return "repaid"
	case LoanStatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// LoanRecord is the canonical record of a borrow event. Identifiers are
// assigned sequentially starting at 1 and never reused. Amounts are USD fixed
// point with 18 decimals.
type LoanRecord struct {
	ID           uint64
	Borrower     [20]byte
	Lender       [20]byte
	PrincipalUSD *big.Int
	RepaidUSD    *big.Int
	OpenedAt     uint64
	Status       LoanStatus
}

// Clone returns a deep copy of the loan record.
func (l *LoanRecord) Clone() *LoanRecord {
	if l == nil {
		return nil
	}
	clone := *l
	if l.PrincipalUSD != nil {
		clone.PrincipalUSD = new(big.Int).Set(l.PrincipalUSD)
	}
	if l.RepaidUSD != nil {
		clone.RepaidUSD = new(big.Int).Set(l.RepaidUSD)
	}
	return &clone
}

// CollateralData is the immutable snapshot taken when a loan opens. It feeds
// historical collateral-utilisation scoring and is never revalued.
type CollateralData struct {
	Token              string
	CollateralValueUSD *big.Int
	PrincipalValueUSD  *big.Int
	ScoreAtBorrow      uint64
	RecordedAt         uint64
}

// Clone returns a deep copy of the collateral snapshot.
func (c *CollateralData) Clone() *CollateralData {
	if c == nil {
		return nil
	}
	clone := *c
	if c.CollateralValueUSD != nil {
		clone.CollateralValueUSD = new(big.Int).Set(c.CollateralValueUSD)
	}
	if c.PrincipalValueUSD != nil {
		clone.PrincipalValueUSD = new(big.Int).Set(c.PrincipalValueUSD)
	}
	return &clone
}

// StakeInfo captures a subject's stake deposit. Deposits only ever extend
// LockUntil forward; withdrawal requires the lock to have elapsed.
type StakeInfo struct {
	Amount    *big.Int
	LockUntil uint64
}

// Clone returns a deep copy of the stake position.
func (s *StakeInfo) Clone() *StakeInfo {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Amount != nil {
		clone.Amount = new(big.Int).Set(s.Amount)
	}
	return &clone
}

// KYCProof records an issuer-signed credential for a subject. Re-verification
// overwrites the previous proof.
type KYCProof struct {
	CredentialHash [32]byte
	VerifiedAt     uint64
	ExpiresAt      uint64
}

// ActiveAt reports whether the proof is live at the supplied unix timestamp.
func (k *KYCProof) ActiveAt(now uint64) bool {
	if k == nil {
		return false
	}
	return k.VerifiedAt > 0 && k.ExpiresAt > now
}

// GovernanceActivity accumulates per-subject participation counters. The
// counters are strictly incrementing.
type GovernanceActivity struct {
	Votes          uint64
	Proposals      uint64
	LastVoteAt     uint64
	LastProposalAt uint64
}

// CrossChainScore is an imported reputation snapshot for one remote chain.
// Imports are last-write-wins per (subject, chain selector) pair.
type CrossChainScore struct {
	ChainSelector uint64
	Score         uint64
	LoanCount     uint64
	RepaidCount   uint64
	UpdatedAt     uint64
}

// MaxLinkedWallets bounds the number of secondary wallets an identity may
// aggregate.
const MaxLinkedWallets = 5

// Identity groups a primary wallet and its linked wallets under one KYC
// identity hash. Each wallet maps to at most one hash and each hash is
// claimed exactly once.
type Identity struct {
	IdentityHash [32]byte
	Primary      [20]byte
	Linked       [][20]byte
}

// Clone returns a deep copy of the identity record.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Linked = make([][20]byte, len(i.Linked))
	copy(clone.Linked, i.Linked)
	return &clone
}
