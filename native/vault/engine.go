package vault

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"creditchain/core/events"
	nativecommon "creditchain/native/common"
	"creditchain/native/pricing"
	"creditchain/native/registry"
	"creditchain/native/score"
	"creditchain/native/token"
)

var (
	ErrAssetNotAllowed       = errors.New("vault: collateral asset not allow-listed")
	ErrInvalidAmount         = errors.New("vault: amount must be positive")
	ErrLTVExceeded           = errors.New("vault: principal exceeds maximum loan-to-value")
	ErrLoanNotFound          = errors.New("vault: loan not found")
	ErrLoanNotActive         = errors.New("vault: loan not active")
	ErrNotBorrower           = errors.New("vault: caller is not the borrower")
	ErrRepayExceedsDebt      = errors.New("vault: repayment exceeds outstanding debt")
	ErrInsufficientLiquidity = errors.New("vault: liquidity pool cannot cover the principal")
	ErrNotConfigured         = errors.New("vault: engine not fully configured")
	errStateNotConfigured    = errors.New("vault: state not configured")
)

const (
	moduleName = "vault"

	basisPoints    = 10_000
	secondsPerYear = 365 * 24 * 60 * 60

	liquidatorShareBps = 500
	insuranceShareBps  = 500
	graceMarginPercent = 10
)

var tokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// engineState is the persistence surface the vault requires.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// creditRegistry is the canonical ledger collaborator. The vault only ever
// touches loans it opened itself.
type creditRegistry interface {
	RegisterLoan(lender, borrower [20]byte, principalUSD *big.Int) (uint64, error)
	RegisterRepayment(lender [20]byte, id uint64, amountUSD *big.Int) error
	RegisterLiquidation(lender [20]byte, id uint64, recoveredUSD *big.Int) error
	RecordCollateralData(lender [20]byte, id uint64, token string, collateralValueUSD *big.Int, scoreAtBorrow uint64) error
	Loan(id uint64) (*registry.LoanRecord, bool, error)
}

// scoreOracle produces the borrowing terms for a subject.
type scoreOracle interface {
	ComputeScore(subject [20]byte) (*score.Breakdown, error)
	TierFor(overall int) score.TierParams
}

// tokenLedger moves collateral and liquidity balances.
type tokenLedger interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	BalanceOf(symbol string, addr [20]byte) (*big.Int, error)
}

// Engine orchestrates borrow, repay and the two-phase liquidation state
// machine. It is the single writer for its own loan records; concurrent access
// is serialised by the caller.
type Engine struct {
	state     engineState
	registry  creditRegistry
	scores    scoreOracle
	prices    pricing.Oracle
	tokens    tokenLedger
	module    [20]byte
	insurance [20]byte
	hasPool   bool
	liquidity string
	allowed   map[string]bool
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	nowFn     func() time.Time
}

// NewEngine constructs an unwired vault engine.
func NewEngine() *Engine {
	return &Engine{
		allowed: make(map[string]bool),
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetState wires the persistence backend.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetCollaborators wires the registry, score oracle, price oracle and token
// ledger the vault orchestrates.
func (e *Engine) SetCollaborators(reg creditRegistry, scores scoreOracle, prices pricing.Oracle, tokens tokenLedger) {
	if e == nil {
		return
	}
	e.registry = reg
	e.scores = scores
	e.prices = prices
	e.tokens = tokens
}

// SetModuleAddress configures the vault's custody account. The same address
// is the vault's lender identity in the registry.
func (e *Engine) SetModuleAddress(module [20]byte) {
	if e == nil {
		return
	}
	e.module = module
}

// SetInsurancePool configures the optional insurance pool recipient. A zero
// address disables the insurance share.
func (e *Engine) SetInsurancePool(pool [20]byte) {
	if e == nil {
		return
	}
	e.insurance = pool
	e.hasPool = pool != ([20]byte{})
}

// SetLiquidityToken configures the symbol disbursed as loan principal. One
// unit of the token is valued at one USD.
func (e *Engine) SetLiquidityToken(symbol string) {
	if e == nil {
		return
	}
	e.liquidity = token.NormalizeSymbol(symbol)
}

// SetAllowedCollateral adds or removes a collateral asset from the allowlist.
func (e *Engine) SetAllowedCollateral(symbol string, allowed bool) {
	if e == nil {
		return
	}
	normalized := token.NormalizeSymbol(symbol)
	if allowed {
		e.allowed[normalized] = true
	} else {
		delete(e.allowed, normalized)
	}
}

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event sink. Nil resets to a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the wall clock. Nil restores the default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errStateNotConfigured
	}
	if e.registry == nil || e.scores == nil || e.prices == nil || e.tokens == nil || e.liquidity == "" {
		return ErrNotConfigured
	}
	return nil
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().Unix())
}

func (e *Engine) emit(ev events.Event) {
	if e == nil || e.emitter == nil || ev == nil {
		return
	}
	e.emitter.Emit(ev)
}

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("vault/loan/%d", id))
}

func (e *Engine) loan(id uint64) (*LoanData, bool, error) {
	var data LoanData
	ok, err := e.state.KVGet(loanKey(id), &data)
	if err != nil || !ok {
		return nil, false, err
	}
	return &data, true, nil
}

func (e *Engine) putLoan(data *LoanData) error {
	return e.state.KVPut(loanKey(data.LoanID), data)
}

// usdValue prices a collateral amount: both the amount and the feed price are
// 18-decimal fixed point, so the product is scaled back down by one unit.
func usdValue(amount, priceUSD *big.Int) *big.Int {
	value := new(big.Int).Mul(amount, priceUSD)
	return value.Quo(value, tokenUnit)
}

// Borrow validates the request against the borrower's credit tier, pulls the
// collateral into custody, registers the canonical loan and disburses the
// principal in liquidity tokens. All registry writes happen after every check
// has passed.
func (e *Engine) Borrow(borrower [20]byte, collateralToken string, collateralAmount, principalUSD *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	collateralToken = token.NormalizeSymbol(collateralToken)
	if !e.allowed[collateralToken] {
		return 0, ErrAssetNotAllowed
	}
	if collateralAmount == nil || collateralAmount.Sign() <= 0 || principalUSD == nil || principalUSD.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}

	breakdown, err := e.scores.ComputeScore(borrower)
	if err != nil {
		return 0, err
	}
	tier := e.scores.TierFor(breakdown.Overall)

	quote, err := e.prices.GetPrice(collateralToken)
	if err != nil {
		return 0, err
	}
	collateralUSD := usdValue(collateralAmount, quote.PriceUSD)

	// principal*100 <= collateralUSD*maxLTV
	lhs := new(big.Int).Mul(principalUSD, big.NewInt(100))
	rhs := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(tier.MaxLTVPercent))
	if lhs.Cmp(rhs) > 0 {
		return 0, ErrLTVExceeded
	}

	// The disbursement must be known to succeed before any transfer or
	// registry write happens; a failed borrow leaves no trace.
	liquidity, err := e.tokens.BalanceOf(e.liquidity, e.module)
	if err != nil {
		return 0, err
	}
	if liquidity.Cmp(principalUSD) < 0 {
		return 0, ErrInsufficientLiquidity
	}

	if err := e.tokens.Transfer(collateralToken, borrower, e.module, collateralAmount); err != nil {
		return 0, err
	}
	id, err := e.registry.RegisterLoan(e.module, borrower, principalUSD)
	if err != nil {
		return 0, err
	}
	if err := e.registry.RecordCollateralData(e.module, id, collateralToken, collateralUSD, uint64(breakdown.Overall)); err != nil {
		return 0, err
	}
	if err := e.tokens.Transfer(e.liquidity, e.module, borrower, principalUSD); err != nil {
		return 0, err
	}

	data := &LoanData{
		LoanID:             id,
		Borrower:           borrower,
		CollateralToken:    collateralToken,
		CollateralAmount:   new(big.Int).Set(collateralAmount),
		PrincipalUSD:       new(big.Int).Set(principalUSD),
		RepaidUSD:          big.NewInt(0),
		PrincipalRepaidUSD: big.NewInt(0),
		APRBps:             tier.APRBps,
		MaxLTVPercent:      tier.MaxLTVPercent,
		GraceSeconds:       tier.GraceSeconds,
		StartedAt:          e.now(),
	}
	if err := e.putLoan(data); err != nil {
		return 0, err
	}
	e.emit(loanOpened{loan: data, collateralUSD: collateralUSD, score: breakdown.Overall, tier: tier.Name})
	return id, nil
}

// Debt returns the outstanding simple-interest debt for a vault loan at the
// current clock.
func (e *Engine) Debt(id uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	data, ok, err := e.loan(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return e.debtAt(data, e.now()), nil
}

// debtAt computes principal + principal*apr*elapsed/(10000*year) - repaid,
// floored at zero.
func (e *Engine) debtAt(data *LoanData, now uint64) *big.Int {
	var elapsed uint64
	if now > data.StartedAt {
		elapsed = now - data.StartedAt
	}
	interest := new(big.Int).Mul(data.PrincipalUSD, new(big.Int).SetUint64(data.APRBps))
	interest.Mul(interest, new(big.Int).SetUint64(elapsed))
	interest.Quo(interest, big.NewInt(basisPoints*secondsPerYear))

	debt := new(big.Int).Add(data.PrincipalUSD, interest)
	debt.Sub(debt, data.RepaidUSD)
	if debt.Sign() < 0 {
		debt.SetInt64(0)
	}
	return debt
}

// Repay accepts liquidity tokens against the outstanding debt. The principal
// portion is forwarded to the registry's bookkeeping; interest stays with the
// vault. Clearing the debt releases the full collateral.
func (e *Engine) Repay(borrower [20]byte, id uint64, amountUSD *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountUSD == nil || amountUSD.Sign() <= 0 {
		return ErrInvalidAmount
	}
	data, ok, err := e.loan(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoanNotFound
	}
	if data.Borrower != borrower {
		return ErrNotBorrower
	}
	now := e.now()
	debt := e.debtAt(data, now)
	if amountUSD.Cmp(debt) > 0 {
		return ErrRepayExceedsDebt
	}

	if err := e.tokens.Transfer(e.liquidity, borrower, e.module, amountUSD); err != nil {
		return err
	}

	// Forward only the principal portion to the registry so its Repaid flip
	// coincides exactly with the principal being covered. The vault record
	// still credits the full payment against the debt.
	outstandingPrincipal := new(big.Int).Sub(data.PrincipalUSD, data.PrincipalRepaidUSD)
	if outstandingPrincipal.Sign() > 0 {
		portion := amountUSD
		if portion.Cmp(outstandingPrincipal) > 0 {
			portion = outstandingPrincipal
		}
		if err := e.registry.RegisterRepayment(e.module, id, portion); err != nil {
			return err
		}
		data.PrincipalRepaidUSD = new(big.Int).Add(data.PrincipalRepaidUSD, portion)
	}
	data.RepaidUSD = new(big.Int).Add(data.RepaidUSD, amountUSD)

	if amountUSD.Cmp(debt) == 0 {
		if err := e.tokens.Transfer(data.CollateralToken, e.module, borrower, data.CollateralAmount); err != nil {
			return err
		}
		if err := e.state.KVDelete(loanKey(id)); err != nil {
			return err
		}
		e.emit(collateralReleased{loan: data})
		return nil
	}
	if err := e.putLoan(data); err != nil {
		return err
	}
	e.emit(loanRepaid{loan: data, amount: amountUSD, remaining: new(big.Int).Sub(debt, amountUSD)})
	return nil
}

// Liquidate drives the two-phase liquidation protocol. Unknown or terminated
// loans are hard errors; every other non-executing path is a successful no-op
// so keepers can poll by resubmitting.
func (e *Engine) Liquidate(liquidator [20]byte, id uint64) (LiquidationOutcome, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	data, ok, err := e.loan(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrLoanNotFound
	}
	record, ok, err := e.registry.Loan(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrLoanNotFound
	}
	if record.Status != registry.LoanStatusActive {
		return 0, ErrLoanNotActive
	}

	quote, err := e.prices.GetPrice(data.CollateralToken)
	if err != nil {
		return 0, err
	}
	collateralUSD := usdValue(data.CollateralAmount, quote.PriceUSD)
	now := e.now()
	debt := e.debtAt(data, now)

	// healthy while debt*100 <= collateralUSD*(maxLTV+margin)
	lhs := new(big.Int).Mul(debt, big.NewInt(100))
	rhs := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(data.MaxLTVPercent+graceMarginPercent))
	if lhs.Cmp(rhs) <= 0 {
		return OutcomeHealthy, nil
	}

	if data.GraceStartedAt == 0 {
		data.GraceStartedAt = now
		if err := e.putLoan(data); err != nil {
			return 0, err
		}
		e.emit(graceArmed{loan: data, debt: debt, collateralUSD: collateralUSD})
		return OutcomeGraceArmed, nil
	}
	if now < data.GraceStartedAt+data.GraceSeconds {
		return OutcomeGracePending, nil
	}

	liquidatorShare := new(big.Int).Mul(data.CollateralAmount, big.NewInt(liquidatorShareBps))
	liquidatorShare.Quo(liquidatorShare, big.NewInt(basisPoints))
	insuranceShare := big.NewInt(0)
	if e.hasPool {
		insuranceShare = new(big.Int).Mul(data.CollateralAmount, big.NewInt(insuranceShareBps))
		insuranceShare.Quo(insuranceShare, big.NewInt(basisPoints))
	}
	borrowerShare := new(big.Int).Sub(data.CollateralAmount, liquidatorShare)
	borrowerShare.Sub(borrowerShare, insuranceShare)

	if liquidatorShare.Sign() > 0 {
		if err := e.tokens.Transfer(data.CollateralToken, e.module, liquidator, liquidatorShare); err != nil {
			return 0, err
		}
	}
	if insuranceShare.Sign() > 0 {
		if err := e.tokens.Transfer(data.CollateralToken, e.module, e.insurance, insuranceShare); err != nil {
			return 0, err
		}
	}
	if borrowerShare.Sign() > 0 {
		if err := e.tokens.Transfer(data.CollateralToken, e.module, data.Borrower, borrowerShare); err != nil {
			return 0, err
		}
	}

	penalty := new(big.Int).Add(liquidatorShare, insuranceShare)
	penaltyUSD := usdValue(penalty, quote.PriceUSD)
	if err := e.registry.RegisterLiquidation(e.module, id, penaltyUSD); err != nil {
		return 0, err
	}
	if err := e.state.KVDelete(loanKey(id)); err != nil {
		return 0, err
	}
	e.emit(loanLiquidated{
		loan:           data,
		liquidator:     liquidator,
		liquidatorCut:  liquidatorShare,
		insuranceCut:   insuranceShare,
		borrowerRefund: borrowerShare,
		penaltyUSD:     penaltyUSD,
	})
	return OutcomeLiquidated, nil
}

// Loan returns the vault-local record for an open loan.
func (e *Engine) Loan(id uint64) (*LoanData, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	data, ok, err := e.loan(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return data.Clone(), true, nil
}
