package registry

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"creditchain/core/types"
)

const (
	EventTypeLoanRegistered     = "registry.loan.registered"
	EventTypeLoanRepaid         = "registry.loan.repaid"
	EventTypeLoanLiquidated     = "registry.loan.liquidated"
	EventTypeCollateralRecorded = "registry.collateral.recorded"
	EventTypeStaked             = "registry.stake.deposited"
	EventTypeUnstaked           = "registry.stake.withdrawn"
	EventTypeKYCVerified        = "registry.kyc.verified"
	EventTypeCrossChainImported = "registry.crosschain.imported"
	EventTypeIdentityRegistered = "registry.identity.registered"
	EventTypeWalletLinked       = "registry.identity.linked"
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

type loanRegistered struct{ loan *LoanRecord }

func (loanRegistered) EventType() string { return EventTypeLoanRegistered }

func (e loanRegistered) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLoanRegistered,
		Attributes: map[string]string{
			"loanId":    fmt.Sprintf("%d", e.loan.ID),
			"borrower":  addrAttr(e.loan.Borrower),
			"lender":    addrAttr(e.loan.Lender),
			"principal": amountAttr(e.loan.PrincipalUSD),
		},
	}
}

type loanRepaid struct {
	loan   *LoanRecord
	amount *big.Int
}

func (loanRepaid) EventType() string { return EventTypeLoanRepaid }

func (e loanRepaid) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLoanRepaid,
		Attributes: map[string]string{
			"loanId":   fmt.Sprintf("%d", e.loan.ID),
			"borrower": addrAttr(e.loan.Borrower),
			"amount":   amountAttr(e.amount),
			"repaid":   amountAttr(e.loan.RepaidUSD),
			"status":   e.loan.Status.String(),
		},
	}
}

type loanLiquidated struct {
	loan      *LoanRecord
	recovered *big.Int
}

func (loanLiquidated) EventType() string { return EventTypeLoanLiquidated }

func (e loanLiquidated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLoanLiquidated,
		Attributes: map[string]string{
			"loanId":    fmt.Sprintf("%d", e.loan.ID),
			"borrower":  addrAttr(e.loan.Borrower),
			"recovered": amountAttr(e.recovered),
		},
	}
}

type collateralRecorded struct {
	loanID   uint64
	borrower [20]byte
	data     *CollateralData
}

func (collateralRecorded) EventType() string { return EventTypeCollateralRecorded }

func (e collateralRecorded) Event() *types.Event {
	return &types.Event{
		Type: EventTypeCollateralRecorded,
		Attributes: map[string]string{
			"loanId":          fmt.Sprintf("%d", e.loanID),
			"borrower":        addrAttr(e.borrower),
			"token":           e.data.Token,
			"collateralValue": amountAttr(e.data.CollateralValueUSD),
			"scoreAtBorrow":   fmt.Sprintf("%d", e.data.ScoreAtBorrow),
		},
	}
}

type staked struct {
	subject   [20]byte
	amount    *big.Int
	lockUntil uint64
}

func (staked) EventType() string { return EventTypeStaked }

func (e staked) Event() *types.Event {
	return &types.Event{
		Type: EventTypeStaked,
		Attributes: map[string]string{
			"subject":   addrAttr(e.subject),
			"amount":    amountAttr(e.amount),
			"lockUntil": fmt.Sprintf("%d", e.lockUntil),
		},
	}
}

type unstaked struct {
	subject [20]byte
	amount  *big.Int
}

func (unstaked) EventType() string { return EventTypeUnstaked }

func (e unstaked) Event() *types.Event {
	return &types.Event{
		Type: EventTypeUnstaked,
		Attributes: map[string]string{
			"subject": addrAttr(e.subject),
			"amount":  amountAttr(e.amount),
		},
	}
}

type kycVerified struct {
	subject [20]byte
	proof   *KYCProof
}

func (kycVerified) EventType() string { return EventTypeKYCVerified }

func (e kycVerified) Event() *types.Event {
	return &types.Event{
		Type: EventTypeKYCVerified,
		Attributes: map[string]string{
			"subject":   addrAttr(e.subject),
			"expiresAt": fmt.Sprintf("%d", e.proof.ExpiresAt),
		},
	}
}

type crossChainImported struct {
	subject [20]byte
	entry   *CrossChainScore
}

func (crossChainImported) EventType() string { return EventTypeCrossChainImported }

func (e crossChainImported) Event() *types.Event {
	return &types.Event{
		Type: EventTypeCrossChainImported,
		Attributes: map[string]string{
			"subject":       addrAttr(e.subject),
			"chainSelector": fmt.Sprintf("%d", e.entry.ChainSelector),
			"score":         fmt.Sprintf("%d", e.entry.Score),
		},
	}
}

type identityRegistered struct{ identity *Identity }

func (identityRegistered) EventType() string { return EventTypeIdentityRegistered }

func (e identityRegistered) Event() *types.Event {
	return &types.Event{
		Type: EventTypeIdentityRegistered,
		Attributes: map[string]string{
			"identityHash": "0x" + hex.EncodeToString(e.identity.IdentityHash[:]),
			"primary":      addrAttr(e.identity.Primary),
		},
	}
}

type walletLinked struct {
	identity *Identity
	wallet   [20]byte
}

func (walletLinked) EventType() string { return EventTypeWalletLinked }

func (e walletLinked) Event() *types.Event {
	return &types.Event{
		Type: EventTypeWalletLinked,
		Attributes: map[string]string{
			"identityHash": "0x" + hex.EncodeToString(e.identity.IdentityHash[:]),
			"primary":      addrAttr(e.identity.Primary),
			"wallet":       addrAttr(e.wallet),
			"linkedCount":  fmt.Sprintf("%d", len(e.identity.Linked)),
		},
	}
}
