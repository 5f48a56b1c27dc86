package vault

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"creditchain/core/types"
)

const (
	EventTypeLoanOpened         = "vault.loan.opened"
	EventTypeLoanRepaid         = "vault.loan.repaid"
	EventTypeCollateralReleased = "vault.collateral.released"
	EventTypeGraceArmed         = "vault.grace.armed"
	EventTypeLoanLiquidated     = "vault.loan.liquidated"
)

func addrAttr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type loanOpened struct {
	loan          *LoanData
	collateralUSD *big.Int
	score         int
	tier          string
}

func (loanOpened) EventType() string { return EventTypeLoanOpened }

func (e loanOpened) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLoanOpened,
		Attributes: map[string]string{
			"loanId":           fmt.Sprintf("%d", e.loan.LoanID),
			"borrower":         addrAttr(e.loan.Borrower),
			"collateralToken":  e.loan.CollateralToken,
			"collateralAmount": amountAttr(e.loan.CollateralAmount),
			"collateralUsd":    amountAttr(e.collateralUSD),
			"principalUsd":     amountAttr(e.loan.PrincipalUSD),
			"score":            fmt.Sprintf("%d", e.score),
			"tier":             e.tier,
			"aprBps":           fmt.Sprintf("%d", e.loan.APRBps),
		},
	}
}

type loanRepaid struct {
	loan      *LoanData
	amount    *big.Int
	remaining *big.Int
}

func (loanRepaid) EventType() string { return EventTypeLoanRepaid }

func (e loanRepaid) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLoanRepaid,
		Attributes: map[string]string{
			"loanId":    fmt.Sprintf("%d", e.loan.LoanID),
			"borrower":  addrAttr(e.loan.Borrower),
			"amount":    amountAttr(e.amount),
			"remaining": amountAttr(e.remaining),
		},
	}
}

type collateralReleased struct{ loan *LoanData }

func (collateralReleased) EventType() string { return EventTypeCollateralReleased }

func (e collateralReleased) Event() *types.Event {
	return &types.Event{
		Type: EventTypeCollateralReleased,
		Attributes: map[string]string{
			"loanId":           fmt.Sprintf("%d", e.loan.LoanID),
			"borrower":         addrAttr(e.loan.Borrower),
			"collateralToken":  e.loan.CollateralToken,
			"collateralAmount": amountAttr(e.loan.CollateralAmount),
		},
	}
}

type graceArmed struct {
	loan          *LoanData
	debt          *big.Int
	collateralUSD *big.Int
}

func (graceArmed) EventType() string { return EventTypeGraceArmed }

func (e graceArmed) Event() *types.Event {
	return &types.Event{
		Type: EventTypeGraceArmed,
		Attributes: map[string]string{
			"loanId":        fmt.Sprintf("%d", e.loan.LoanID),
			"borrower":      addrAttr(e.loan.Borrower),
			"debtUsd":       amountAttr(e.debt),
			"collateralUsd": amountAttr(e.collateralUSD),
			"graceStart":    fmt.Sprintf("%d", e.loan.GraceStartedAt),
			"graceSeconds":  fmt.Sprintf("%d", e.loan.GraceSeconds),
		},
	}
}

type loanLiquidated struct {
	loan           *LoanData
	liquidator     [20]byte
	liquidatorCut  *big.Int
	insuranceCut   *big.Int
	borrowerRefund *big.Int
	penaltyUSD     *big.Int
}

func (loanLiquidated) EventType() string { return EventTypeLoanLiquidated }

func (e loanLiquidated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLoanLiquidated,
		Attributes: map[string]string{
			"loanId":         fmt.Sprintf("%d", e.loan.LoanID),
			"borrower":       addrAttr(e.loan.Borrower),
			"liquidator":     addrAttr(e.liquidator),
			"liquidatorCut":  amountAttr(e.liquidatorCut),
			"insuranceCut":   amountAttr(e.insuranceCut),
			"borrowerRefund": amountAttr(e.borrowerRefund),
			"penaltyUsd":     amountAttr(e.penaltyUSD),
		},
	}
}
