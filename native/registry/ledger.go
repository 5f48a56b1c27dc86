package registry

import (
	"errors"
	"math/big"
)

// storage abstracts the subset of state manager functionality required by the
// credit ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
}

var errLedgerNotInitialised = errors.New("registry: ledger not initialised")

// Ledger persists the canonical credit records. It performs no authorization;
// the engine gates every mutation before touching the ledger.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) ready() error {
	if l == nil || l.store == nil {
		return errLedgerNotInitialised
	}
	return nil
}

// NextLoanID allocates the next sequential loan identifier, starting at 1.
func (l *Ledger) NextLoanID() (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	var last uint64
	if _, err := l.store.KVGet(loanSeqKey, &last); err != nil {
		return 0, err
	}
	next := last + 1
	if err := l.store.KVPut(loanSeqKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// PutLoan stores the loan record under its identifier.
func (l *Ledger) PutLoan(loan *LoanRecord) error {
	if err := l.ready(); err != nil {
		return err
	}
	if loan == nil {
		return errors.New("registry: loan required")
	}
	return l.store.KVPut(loanKey(loan.ID), loan)
}

// Loan retrieves the loan record for the supplied identifier.
func (l *Ledger) Loan(id uint64) (*LoanRecord, bool, error) {
	if err := l.ready(); err != nil {
		return nil, false, err
	}
	var loan LoanRecord
	ok, err := l.store.KVGet(loanKey(id), &loan)
	if err != nil || !ok {
		return nil, false, err
	}
	return &loan, true, nil
}

// AppendLoanID records the loan against the borrower's index.
func (l *Ledger) AppendLoanID(subject [20]byte, id uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	return l.store.KVAppend(loanIndexKey(subject), encodeUint64(id))
}

// LoanIDs lists all loan identifiers registered for the subject, in issue
// order.
func (l *Ledger) LoanIDs(subject [20]byte) ([]uint64, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	raw, err := l.store.KVGetList(loanIndexKey(subject))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		ids = append(ids, decodeUint64(entry))
	}
	return ids, nil
}

// PutCollateral stores the write-once collateral snapshot for a loan.
func (l *Ledger) PutCollateral(id uint64, data *CollateralData) error {
	if err := l.ready(); err != nil {
		return err
	}
	if data == nil {
		return errors.New("registry: collateral data required")
	}
	return l.store.KVPut(collateralKey(id), data)
}

// Collateral retrieves the collateral snapshot for a loan.
func (l *Ledger) Collateral(id uint64) (*CollateralData, bool, error) {
	if err := l.ready(); err != nil {
		return nil, false, err
	}
	var data CollateralData
	ok, err := l.store.KVGet(collateralKey(id), &data)
	if err != nil || !ok {
		return nil, false, err
	}
	return &data, true, nil
}

// AppendAsset tracks a distinct collateral asset symbol for the subject.
func (l *Ledger) AppendAsset(subject [20]byte, symbol string) error {
	if err := l.ready(); err != nil {
		return err
	}
	return l.store.KVAppend(assetIndexKey(subject), []byte(symbol))
}

// Assets lists the distinct collateral asset symbols used by the subject.
func (l *Ledger) Assets(subject [20]byte) ([]string, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	raw, err := l.store.KVGetList(assetIndexKey(subject))
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(raw))
	for _, entry := range raw {
		symbols = append(symbols, string(entry))
	}
	return symbols, nil
}

// PutStake stores the subject's stake position.
func (l *Ledger) PutStake(subject [20]byte, info *StakeInfo) error {
	if err := l.ready(); err != nil {
		return err
	}
	if info == nil {
		return errors.New("registry: stake info required")
	}
	return l.store.KVPut(stakeKey(subject), info)
}

// Stake retrieves the subject's stake position; missing entries read as a
// zero stake.
func (l *Ledger) Stake(subject [20]byte) (*StakeInfo, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	var info StakeInfo
	ok, err := l.store.KVGet(stakeKey(subject), &info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &StakeInfo{Amount: big.NewInt(0)}, nil
	}
	if info.Amount == nil {
		info.Amount = big.NewInt(0)
	}
	return &info, nil
}

// PutKYC stores the subject's credential proof, replacing any prior proof.
func (l *Ledger) PutKYC(subject [20]byte, proof *KYCProof) error {
	if err := l.ready(); err != nil {
		return err
	}
	if proof == nil {
		return errors.New("registry: kyc proof required")
	}
	return l.store.KVPut(kycKey(subject), proof)
}

// KYC retrieves the subject's credential proof.
func (l *Ledger) KYC(subject [20]byte) (*KYCProof, bool, error) {
	if err := l.ready(); err != nil {
		return nil, false, err
	}
	var proof KYCProof
	ok, err := l.store.KVGet(kycKey(subject), &proof)
	if err != nil || !ok {
		return nil, false, err
	}
	return &proof, true, nil
}

// PutGovernance stores the subject's participation counters.
func (l *Ledger) PutGovernance(subject [20]byte, activity *GovernanceActivity) error {
	if err := l.ready(); err != nil {
		return err
	}
	if activity == nil {
		return errors.New("registry: governance activity required")
	}
	return l.store.KVPut(govKey(subject), activity)
}

// Governance retrieves the subject's participation counters; missing entries
// read as zero activity.
func (l *Ledger) Governance(subject [20]byte) (*GovernanceActivity, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	var activity GovernanceActivity
	if _, err := l.store.KVGet(govKey(subject), &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// PutCrossChain stores the imported score for one (subject, chain) pair and
// tracks the chain selector in the subject's chain index.
func (l *Ledger) PutCrossChain(subject [20]byte, score *CrossChainScore) error {
	if err := l.ready(); err != nil {
		return err
	}
	if score == nil {
		return errors.New("registry: cross-chain score required")
	}
	if err := l.store.KVPut(crossChainKey(subject, score.ChainSelector), score); err != nil {
		return err
	}
	return l.store.KVAppend(chainIndexKey(subject), encodeUint64(score.ChainSelector))
}

// CrossChain lists every imported score for the subject.
func (l *Ledger) CrossChain(subject [20]byte) ([]*CrossChainScore, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	raw, err := l.store.KVGetList(chainIndexKey(subject))
	if err != nil {
		return nil, err
	}
	scores := make([]*CrossChainScore, 0, len(raw))
	for _, entry := range raw {
		var score CrossChainScore
		ok, err := l.store.KVGet(crossChainKey(subject, decodeUint64(entry)), &score)
		if err != nil {
			return nil, err
		}
		if ok {
			scores = append(scores, &score)
		}
	}
	return scores, nil
}

// TouchFirstSeen stamps the subject's first interaction timestamp if absent.
func (l *Ledger) TouchFirstSeen(subject [20]byte, now uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	var existing uint64
	ok, err := l.store.KVGet(firstSeenKey(subject), &existing)
	if err != nil {
		return err
	}
	if ok && existing > 0 {
		return nil
	}
	return l.store.KVPut(firstSeenKey(subject), now)
}

// FirstSeen returns the subject's first interaction timestamp, zero when the
// subject is unknown.
func (l *Ledger) FirstSeen(subject [20]byte) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	var ts uint64
	if _, err := l.store.KVGet(firstSeenKey(subject), &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// PutIdentity stores the identity record and its wallet/hash indexes.
func (l *Ledger) PutIdentity(identity *Identity) error {
	if err := l.ready(); err != nil {
		return err
	}
	if identity == nil {
		return errors.New("registry: identity required")
	}
	if err := l.store.KVPut(identityKey(identity.IdentityHash), identity); err != nil {
		return err
	}
	if err := l.store.KVPut(walletIndexKey(identity.Primary), identity.IdentityHash[:]); err != nil {
		return err
	}
	for _, wallet := range identity.Linked {
		if err := l.store.KVPut(walletIndexKey(wallet), identity.IdentityHash[:]); err != nil {
			return err
		}
	}
	return l.store.KVPut(usedHashKey(identity.IdentityHash), true)
}

// Identity retrieves the identity claimed by the supplied hash.
func (l *Ledger) Identity(hash [32]byte) (*Identity, bool, error) {
	if err := l.ready(); err != nil {
		return nil, false, err
	}
	var identity Identity
	ok, err := l.store.KVGet(identityKey(hash), &identity)
	if err != nil || !ok {
		return nil, false, err
	}
	return &identity, true, nil
}

// WalletIdentity resolves the identity hash a wallet is bound to.
func (l *Ledger) WalletIdentity(wallet [20]byte) ([32]byte, bool, error) {
	var hash [32]byte
	if err := l.ready(); err != nil {
		return hash, false, err
	}
	var raw []byte
	ok, err := l.store.KVGet(walletIndexKey(wallet), &raw)
	if err != nil || !ok {
		return hash, false, err
	}
	copy(hash[:], raw)
	return hash, true, nil
}

// HashUsed reports whether an identity hash has already been claimed.
func (l *Ledger) HashUsed(hash [32]byte) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	var used bool
	ok, err := l.store.KVGet(usedHashKey(hash), &used)
	if err != nil {
		return false, err
	}
	return ok && used, nil
}
