package registry

import (
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditchain/core/events"
	"creditchain/crypto"
	nativecommon "creditchain/native/common"
)

var (
	ErrNotAuthorized      = errors.New("registry: caller not authorized")
	ErrInvalidAmount      = errors.New("registry: amount must be positive")
	ErrZeroAddress        = errors.New("registry: zero address")
	ErrLoanNotFound       = errors.New("registry: loan not found")
	ErrLoanNotActive      = errors.New("registry: loan not active")
	ErrCollateralRecorded = errors.New("registry: collateral already recorded")
	ErrStakeLocked        = errors.New("registry: stake still locked")
	ErrStakeInsufficient  = errors.New("registry: stake amount exceeds balance")
	ErrProofExpired       = errors.New("registry: credential proof expired")
	ErrBadSignature       = errors.New("registry: issuer signature mismatch")
	ErrScoreOutOfRange    = errors.New("registry: imported score exceeds 100")
	ErrChainNotAllowed    = errors.New("registry: chain selector not allow-listed")
	ErrWalletBound        = errors.New("registry: wallet already bound to an identity")
	ErrHashClaimed        = errors.New("registry: identity hash already claimed")
	ErrIdentityNotFound   = errors.New("registry: identity not found")
	ErrLinkLimit          = errors.New("registry: linked wallet limit reached")
)

const moduleName = "registry"

// tokenLedger is the custody collaborator used to move stake deposits.
type tokenLedger interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// Engine is the single source of truth for per-subject credit facts. Every
// mutation is gated on a role set and performs exactly one atomic state
// transition; there is no partial-write path.
type Engine struct {
	ledger     *Ledger
	tokens     tokenLedger
	stakeToken string
	stakeVault [20]byte
	issuer     [20]byte
	lenders    map[[20]byte]bool
	governance map[[20]byte]bool
	relayers   map[[20]byte]bool
	chains     map[uint64]bool
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() time.Time
}

// NewEngine constructs a registry engine backed by the provided storage.
func NewEngine(store storage) *Engine {
	return &Engine{
		ledger:     NewLedger(store),
		lenders:    make(map[[20]byte]bool),
		governance: make(map[[20]byte]bool),
		relayers:   make(map[[20]byte]bool),
		chains:     make(map[uint64]bool),
		emitter:    events.NoopEmitter{},
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// SetTokenLedger wires the custody collaborator used by stake flows together
// with the stake token symbol and the module vault address holding deposits.
func (e *Engine) SetTokenLedger(tokens tokenLedger, symbol string, vault [20]byte) {
	if e == nil {
		return
	}
	e.tokens = tokens
	e.stakeToken = symbol
	e.stakeVault = vault
}

// SetIssuer configures the address whose signatures authenticate KYC proofs.
func (e *Engine) SetIssuer(issuer [20]byte) {
	if e == nil {
		return
	}
	e.issuer = issuer
}

// SetAuthorizedLender grants or revokes lender privileges.
func (e *Engine) SetAuthorizedLender(addr [20]byte, allowed bool) {
	if e == nil {
		return
	}
	if allowed {
		e.lenders[addr] = true
	} else {
		delete(e.lenders, addr)
	}
}

// SetAuthorizedGovernance grants or revokes governance-recorder privileges.
func (e *Engine) SetAuthorizedGovernance(addr [20]byte, allowed bool) {
	if e == nil {
		return
	}
	if allowed {
		e.governance[addr] = true
	} else {
		delete(e.governance, addr)
	}
}

// SetAuthorizedRelayer grants or revokes cross-chain import privileges.
func (e *Engine) SetAuthorizedRelayer(addr [20]byte, allowed bool) {
	if e == nil {
		return
	}
	if allowed {
		e.relayers[addr] = true
	} else {
		delete(e.relayers, addr)
	}
}

// SetAllowedChain adds or removes a chain selector from the import allowlist.
func (e *Engine) SetAllowedChain(selector uint64, allowed bool) {
	if e == nil {
		return
	}
	if allowed {
		e.chains[selector] = true
	} else {
		delete(e.chains, selector)
	}
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

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
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

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().Unix())
}

func (e *Engine) emit(ev events.Event) {
	if e == nil || e.emitter == nil || ev == nil {
		return
	}
	e.emitter.Emit(ev)
}

func isZeroAddress(addr [20]byte) bool {
	return addr == ([20]byte{})
}

// RegisterLoan opens a canonical loan record for the borrower and returns the
// assigned identifier. The first interaction also stamps the borrower's
// first-seen timestamp.
func (e *Engine) RegisterLoan(lender, borrower [20]byte, principalUSD *big.Int) (uint64, error) {
	if e == nil || e.ledger == nil {
		return 0, errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if !e.lenders[lender] {
		return 0, ErrNotAuthorized
	}
	if principalUSD == nil || principalUSD.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if isZeroAddress(borrower) {
		return 0, ErrZeroAddress
	}
	id, err := e.ledger.NextLoanID()
	if err != nil {
		return 0, err
	}
	now := e.now()
	loan := &LoanRecord{
		ID:           id,
		Borrower:     borrower,
		Lender:       lender,
		PrincipalUSD: new(big.Int).Set(principalUSD),
		RepaidUSD:    big.NewInt(0),
		OpenedAt:     now,
		Status:       LoanStatusActive,
	}
	if err := e.ledger.PutLoan(loan); err != nil {
		return 0, err
	}
	if err := e.ledger.AppendLoanID(borrower, id); err != nil {
		return 0, err
	}
	if err := e.ledger.TouchFirstSeen(borrower, now); err != nil {
		return 0, err
	}
	e.emit(loanRegistered{loan: loan})
	return id, nil
}

func (e *Engine) activeLoanForLender(lender [20]byte, id uint64) (*LoanRecord, error) {
	if !e.lenders[lender] {
		return nil, ErrNotAuthorized
	}
	loan, ok, err := e.ledger.Loan(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	if loan.Lender != lender {
		return nil, ErrNotAuthorized
	}
	if loan.Status != LoanStatusActive {
		return nil, ErrLoanNotActive
	}
	return loan, nil
}

// RegisterRepayment credits a repayment against an active loan. When the
// cumulative repaid amount reaches the principal the loan flips to Repaid and
// accepts no further mutation.
func (e *Engine) RegisterRepayment(lender [20]byte, id uint64, amountUSD *big.Int) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountUSD == nil || amountUSD.Sign() <= 0 {
		return ErrInvalidAmount
	}
	loan, err := e.activeLoanForLender(lender, id)
	if err != nil {
		return err
	}
	loan.RepaidUSD = new(big.Int).Add(loan.RepaidUSD, amountUSD)
	if loan.RepaidUSD.Cmp(loan.PrincipalUSD) >= 0 {
		loan.Status = LoanStatusRepaid
	}
	if err := e.ledger.PutLoan(loan); err != nil {
		return err
	}
	e.emit(loanRepaid{loan: loan, amount: amountUSD})
	return nil
}

// RegisterLiquidation terminates an active loan as Liquidated, folding the
// recovered amount into the repaid total for bookkeeping.
func (e *Engine) RegisterLiquidation(lender [20]byte, id uint64, recoveredUSD *big.Int) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if recoveredUSD == nil || recoveredUSD.Sign() < 0 {
		return ErrInvalidAmount
	}
	loan, err := e.activeLoanForLender(lender, id)
	if err != nil {
		return err
	}
	loan.Status = LoanStatusLiquidated
	loan.RepaidUSD = new(big.Int).Add(loan.RepaidUSD, recoveredUSD)
	if err := e.ledger.PutLoan(loan); err != nil {
		return err
	}
	e.emit(loanLiquidated{loan: loan, recovered: recoveredUSD})
	return nil
}

// RecordCollateralData writes the immutable collateral snapshot for an active
// loan and tracks the asset in the borrower's distinct-collateral index.
func (e *Engine) RecordCollateralData(lender [20]byte, id uint64, token string, collateralValueUSD *big.Int, scoreAtBorrow uint64) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if collateralValueUSD == nil || collateralValueUSD.Sign() <= 0 {
		return ErrInvalidAmount
	}
	loan, err := e.activeLoanForLender(lender, id)
	if err != nil {
		return err
	}
	if _, exists, err := e.ledger.Collateral(id); err != nil {
		return err
	} else if exists {
		return ErrCollateralRecorded
	}
	data := &CollateralData{
		Token:              token,
		CollateralValueUSD: new(big.Int).Set(collateralValueUSD),
		PrincipalValueUSD:  new(big.Int).Set(loan.PrincipalUSD),
		ScoreAtBorrow:      scoreAtBorrow,
		RecordedAt:         e.now(),
	}
	if err := e.ledger.PutCollateral(id, data); err != nil {
		return err
	}
	if err := e.ledger.AppendAsset(loan.Borrower, token); err != nil {
		return err
	}
	e.emit(collateralRecorded{loanID: id, borrower: loan.Borrower, data: data})
	return nil
}

// Stake deposits stake tokens for the subject and extends the lock window
// forward. Locks never move backward.
func (e *Engine) Stake(subject [20]byte, amount *big.Int, lockSeconds uint64) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.tokens == nil {
		return errors.New("registry: token ledger not configured")
	}
	if err := e.tokens.Transfer(e.stakeToken, subject, e.stakeVault, amount); err != nil {
		return err
	}
	info, err := e.ledger.Stake(subject)
	if err != nil {
		return err
	}
	info.Amount = new(big.Int).Add(info.Amount, amount)
	now := e.now()
	if until := now + lockSeconds; until > info.LockUntil {
		info.LockUntil = until
	}
	if err := e.ledger.PutStake(subject, info); err != nil {
		return err
	}
	if err := e.ledger.TouchFirstSeen(subject, now); err != nil {
		return err
	}
	e.emit(staked{subject: subject, amount: amount, lockUntil: info.LockUntil})
	return nil
}

// Unstake withdraws stake tokens once the lock has elapsed.
func (e *Engine) Unstake(subject [20]byte, amount *big.Int) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.tokens == nil {
		return errors.New("registry: token ledger not configured")
	}
	info, err := e.ledger.Stake(subject)
	if err != nil {
		return err
	}
	if info.Amount.Cmp(amount) < 0 {
		return ErrStakeInsufficient
	}
	if e.now() < info.LockUntil {
		return ErrStakeLocked
	}
	info.Amount = new(big.Int).Sub(info.Amount, amount)
	if err := e.ledger.PutStake(subject, info); err != nil {
		return err
	}
	if err := e.tokens.Transfer(e.stakeToken, e.stakeVault, subject, amount); err != nil {
		return err
	}
	e.emit(unstaked{subject: subject, amount: amount})
	return nil
}

// KYCDigest derives the signing digest for a credential proof. The off-chain
// issuer signs this digest; SubmitKYC recovers the signer from it.
func KYCDigest(subject [20]byte, credentialHash [32]byte, expiresAt uint64) [32]byte {
	var expiry [8]byte
	binary.BigEndian.PutUint64(expiry[:], expiresAt)
	digest := ethcrypto.Keccak256(subject[:], credentialHash[:], expiry[:])
	var out [32]byte
	copy(out[:], digest)
	return out
}

// SubmitKYC verifies the issuer signature over (subject, credentialHash,
// expiresAt) and stores the proof. Re-verification overwrites the previous
// proof and refreshes the expiry.
func (e *Engine) SubmitKYC(subject [20]byte, credentialHash [32]byte, expiresAt uint64, sig []byte) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZeroAddress(subject) {
		return ErrZeroAddress
	}
	now := e.now()
	if expiresAt <= now {
		return ErrProofExpired
	}
	digest := KYCDigest(subject, credentialHash, expiresAt)
	signer, err := crypto.RecoverSigner(digest[:], sig)
	if err != nil {
		return ErrBadSignature
	}
	if isZeroAddress(e.issuer) || signer != e.issuer {
		return ErrBadSignature
	}
	proof := &KYCProof{CredentialHash: credentialHash, VerifiedAt: now, ExpiresAt: expiresAt}
	if err := e.ledger.PutKYC(subject, proof); err != nil {
		return err
	}
	if err := e.ledger.TouchFirstSeen(subject, now); err != nil {
		return err
	}
	e.emit(kycVerified{subject: subject, proof: proof})
	return nil
}

// RecordVote increments the subject's vote counter. Governance callers only.
func (e *Engine) RecordVote(caller, subject [20]byte) error {
	return e.recordGovernance(caller, subject, true)
}

// RecordProposal increments the subject's proposal counter. Governance
// callers only.
func (e *Engine) RecordProposal(caller, subject [20]byte) error {
	return e.recordGovernance(caller, subject, false)
}

func (e *Engine) recordGovernance(caller, subject [20]byte, vote bool) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.governance[caller] {
		return ErrNotAuthorized
	}
	if isZeroAddress(subject) {
		return ErrZeroAddress
	}
	activity, err := e.ledger.Governance(subject)
	if err != nil {
		return err
	}
	now := e.now()
	if vote {
		activity.Votes++
		activity.LastVoteAt = now
	} else {
		activity.Proposals++
		activity.LastProposalAt = now
	}
	if err := e.ledger.PutGovernance(subject, activity); err != nil {
		return err
	}
	return e.ledger.TouchFirstSeen(subject, now)
}

// ImportCrossChainScore stores a relayed reputation snapshot for the subject.
// Imports are last-write-wins per chain selector; the trust boundary is the
// relayer role plus the chain allowlist.
func (e *Engine) ImportCrossChainScore(caller, subject [20]byte, chainSelector, score, loanCount, repaidCount uint64) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.relayers[caller] {
		return ErrNotAuthorized
	}
	if isZeroAddress(subject) {
		return ErrZeroAddress
	}
	if !e.chains[chainSelector] {
		return ErrChainNotAllowed
	}
	if score > 100 {
		return ErrScoreOutOfRange
	}
	entry := &CrossChainScore{
		ChainSelector: chainSelector,
		Score:         score,
		LoanCount:     loanCount,
		RepaidCount:   repaidCount,
		UpdatedAt:     e.now(),
	}
	if err := e.ledger.PutCrossChain(subject, entry); err != nil {
		return err
	}
	e.emit(crossChainImported{subject: subject, entry: entry})
	return nil
}

// RegisterIdentity claims an identity hash for the primary wallet. Each
// wallet binds to at most one hash and each hash is claimed exactly once.
func (e *Engine) RegisterIdentity(primary [20]byte, identityHash [32]byte) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZeroAddress(primary) {
		return ErrZeroAddress
	}
	if _, bound, err := e.ledger.WalletIdentity(primary); err != nil {
		return err
	} else if bound {
		return ErrWalletBound
	}
	if used, err := e.ledger.HashUsed(identityHash); err != nil {
		return err
	} else if used {
		return ErrHashClaimed
	}
	identity := &Identity{IdentityHash: identityHash, Primary: primary}
	if err := e.ledger.PutIdentity(identity); err != nil {
		return err
	}
	if err := e.ledger.TouchFirstSeen(primary, e.now()); err != nil {
		return err
	}
	e.emit(identityRegistered{identity: identity})
	return nil
}

// LinkWallet binds a secondary wallet to the primary's identity, up to the
// configured limit.
func (e *Engine) LinkWallet(primary, wallet [20]byte) error {
	if e == nil || e.ledger == nil {
		return errLedgerNotInitialised
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZeroAddress(wallet) {
		return ErrZeroAddress
	}
	hash, bound, err := e.ledger.WalletIdentity(primary)
	if err != nil {
		return err
	}
	if !bound {
		return ErrIdentityNotFound
	}
	identity, ok, err := e.ledger.Identity(hash)
	if err != nil {
		return err
	}
	if !ok || identity.Primary != primary {
		return ErrIdentityNotFound
	}
	if _, taken, err := e.ledger.WalletIdentity(wallet); err != nil {
		return err
	} else if taken {
		return ErrWalletBound
	}
	if len(identity.Linked) >= MaxLinkedWallets {
		return ErrLinkLimit
	}
	identity.Linked = append(identity.Linked, wallet)
	if err := e.ledger.PutIdentity(identity); err != nil {
		return err
	}
	e.emit(walletLinked{identity: identity, wallet: wallet})
	return nil
}

// --- read surface consumed by the score oracle and RPC ---

// Loan returns the loan record for the supplied identifier.
func (e *Engine) Loan(id uint64) (*LoanRecord, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errLedgerNotInitialised
	}
	return e.ledger.Loan(id)
}

// LoanIDs lists the subject's loan identifiers in issue order.
func (e *Engine) LoanIDs(subject [20]byte) ([]uint64, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerNotInitialised
	}
	return e.ledger.LoanIDs(subject)
}

// Collateral returns the collateral snapshot recorded for a loan.
func (e *Engine) Collateral(id uint64) (*CollateralData, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errLedgerNotInitialised
	}
	return e.ledger.Collateral(id)
}

// Assets lists the distinct collateral assets the subject has posted.
func (e *Engine) Assets(subject [20]byte) ([]string, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerNotInitialised
	}
	return e.ledger.Assets(subject)
}

// StakeOf returns the subject's stake position.
func (e *Engine) StakeOf(subject [20]byte) (*StakeInfo, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerNotInitialised
	}
	return e.ledger.Stake(subject)
}

// KYCOf returns the subject's credential proof when present.
func (e *Engine) KYCOf(subject [20]byte) (*KYCProof, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errLedgerNotInitialised
	}
	return e.ledger.KYC(subject)
}

// GovernanceOf returns the subject's participation counters.
func (e *Engine) GovernanceOf(subject [20]byte) (*GovernanceActivity, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerNotInitialised
	}
	return e.ledger.Governance(subject)
}

// CrossChainOf lists every imported cross-chain score for the subject.
func (e *Engine) CrossChainOf(subject [20]byte) ([]*CrossChainScore, error) {
	if e == nil || e.ledger == nil {
		return nil, errLedgerNotInitialised
	}
	return e.ledger.CrossChain(subject)
}

// FirstSeen returns the subject's first interaction timestamp.
func (e *Engine) FirstSeen(subject [20]byte) (uint64, error) {
	if e == nil || e.ledger == nil {
		return 0, errLedgerNotInitialised
	}
	return e.ledger.FirstSeen(subject)
}

// IdentityOf resolves the identity record a wallet belongs to.
func (e *Engine) IdentityOf(wallet [20]byte) (*Identity, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errLedgerNotInitialised
	}
	hash, bound, err := e.ledger.WalletIdentity(wallet)
	if err != nil || !bound {
		return nil, false, err
	}
	return e.ledger.Identity(hash)
}
