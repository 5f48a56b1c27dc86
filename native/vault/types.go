package vault

import "math/big"

// LoanData is the vault-local companion to a registry loan record, keyed by
// the same identifier. The borrowing terms are frozen at borrow time so the
// liquidation state machine is deterministic for the life of the loan.
type LoanData struct {
	LoanID           uint64
	Borrower         [20]byte
	CollateralToken  string
	CollateralAmount *big.Int
	PrincipalUSD     *big.Int
	// RepaidUSD is everything the borrower has paid in, interest included;
	// the debt formula subtracts it in full. PrincipalRepaidUSD is the slice
	// of that already forwarded to the registry's principal bookkeeping.
	RepaidUSD          *big.Int
	PrincipalRepaidUSD *big.Int
	APRBps             uint64
	MaxLTVPercent      uint64
	GraceSeconds       uint64
	StartedAt          uint64
	GraceStartedAt     uint64
}

// Clone returns a deep copy of the vault loan record.
func (l *LoanData) Clone() *LoanData {
	if l == nil {
		return nil
	}
	clone := *l
	if l.CollateralAmount != nil {
		clone.CollateralAmount = new(big.Int).Set(l.CollateralAmount)
	}
	if l.PrincipalUSD != nil {
		clone.PrincipalUSD = new(big.Int).Set(l.PrincipalUSD)
	}
	if l.RepaidUSD != nil {
		clone.RepaidUSD = new(big.Int).Set(l.RepaidUSD)
	}
	if l.PrincipalRepaidUSD != nil {
		clone.PrincipalRepaidUSD = new(big.Int).Set(l.PrincipalRepaidUSD)
	}
	return &clone
}

// LiquidationOutcome distinguishes the soft results of a liquidation call.
// Only OutcomeLiquidated moves assets; the others are successful no-ops that
// keeper bots poll through.
type LiquidationOutcome uint8

const (
	OutcomeHealthy LiquidationOutcome = iota + 1
	OutcomeGraceArmed
	OutcomeGracePending
	OutcomeLiquidated
)

// String renders the canonical outcome label.
func (o LiquidationOutcome) String() string {
	switch o {
	case OutcomeHealthy:
		return "healthy"
	case OutcomeGraceArmed:
		return "graceArmed"
	case OutcomeGracePending:
		return "gracePending"
	case OutcomeLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}
