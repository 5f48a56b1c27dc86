package registry

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creditchain/core/events"
	"creditchain/core/state"
	"creditchain/crypto"
	"creditchain/native/token"
	storagepkg "creditchain/storage"
)

var (
	testLender   = [20]byte{0x01}
	testBorrower = [20]byte{0x02}
	testVault    = [20]byte{0xee}
)

func newTestEngine(t *testing.T) (*Engine, *token.Ledger, *events.MemoryEmitter) {
	t.Helper()
	manager := state.NewManager(storagepkg.NewMemDB())
	tokens := token.NewLedger(manager)
	engine := NewEngine(manager)
	engine.SetTokenLedger(tokens, "CRED", testVault)
	engine.SetAuthorizedLender(testLender, true)
	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })
	emitter := events.NewMemoryEmitter(0)
	engine.SetEmitter(emitter)
	return engine, tokens, emitter
}

func TestRegisterLoanAssignsSequentialIDs(t *testing.T) {
	engine, _, emitter := newTestEngine(t)

	first, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)

	second, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)

	ids, err := engine.LoanIDs(testBorrower)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, ids)

	seen, err := engine.FirstSeen(testBorrower)
	require.NoError(t, err)
	require.Equal(t, uint64(1_700_000_000), seen)

	evts := emitter.Events()
	require.Len(t, evts, 2)
	require.Equal(t, EventTypeLoanRegistered, evts[0].Type)
	require.Equal(t, "1000", evts[0].Attributes["principal"])
}

func TestRegisterLoanRejectsUnauthorizedCaller(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.RegisterLoan([20]byte{0x99}, testBorrower, big.NewInt(100))
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestRegisterLoanValidatesInput(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = engine.RegisterLoan(testLender, [20]byte{}, big.NewInt(100))
	require.ErrorIs(t, err, ErrZeroAddress)
}

func TestRepaymentFlipsStatusAtPrincipal(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	id, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, engine.RegisterRepayment(testLender, id, big.NewInt(400)))
	loan, ok, err := engine.Loan(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, LoanStatusActive, loan.Status)
	require.Equal(t, "400", loan.RepaidUSD.String())

	require.NoError(t, engine.RegisterRepayment(testLender, id, big.NewInt(600)))
	loan, _, err = engine.Loan(id)
	require.NoError(t, err)
	require.Equal(t, LoanStatusRepaid, loan.Status)

	err = engine.RegisterRepayment(testLender, id, big.NewInt(1))
	require.ErrorIs(t, err, ErrLoanNotActive)
}

func TestRepaymentRejectsForeignLender(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	other := [20]byte{0x07}
	engine.SetAuthorizedLender(other, true)

	id, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(1_000))
	require.NoError(t, err)

	err = engine.RegisterRepayment(other, id, big.NewInt(100))
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestLiquidationTerminatesLoan(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	id, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, engine.RegisterLiquidation(testLender, id, big.NewInt(750)))
	loan, _, err := engine.Loan(id)
	require.NoError(t, err)
	require.Equal(t, LoanStatusLiquidated, loan.Status)
	require.Equal(t, "750", loan.RepaidUSD.String())

	err = engine.RegisterLiquidation(testLender, id, big.NewInt(1))
	require.ErrorIs(t, err, ErrLoanNotActive)
}

func TestCollateralDataIsWriteOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	id, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, engine.RecordCollateralData(testLender, id, "WETH", big.NewInt(2_000), 72))
	err = engine.RecordCollateralData(testLender, id, "WBTC", big.NewInt(3_000), 72)
	require.ErrorIs(t, err, ErrCollateralRecorded)

	data, ok, err := engine.Collateral(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "WETH", data.Token)
	require.Equal(t, "1000", data.PrincipalValueUSD.String())

	assets, err := engine.Assets(testBorrower)
	require.NoError(t, err)
	require.Equal(t, []string{"WETH"}, assets)
}

func TestAssetsDeduplicateAcrossLoans(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	for i := 0; i < 2; i++ {
		id, err := engine.RegisterLoan(testLender, testBorrower, big.NewInt(1_000))
		require.NoError(t, err)
		require.NoError(t, engine.RecordCollateralData(testLender, id, "WETH", big.NewInt(2_000), 50))
	}

	assets, err := engine.Assets(testBorrower)
	require.NoError(t, err)
	require.Equal(t, []string{"WETH"}, assets)
}

func TestStakeAndUnstakeRespectLock(t *testing.T) {
	engine, tokens, _ := newTestEngine(t)
	require.NoError(t, tokens.Mint("CRED", testBorrower, big.NewInt(1_000)))

	require.NoError(t, engine.Stake(testBorrower, big.NewInt(600), 3_600))

	balance, err := tokens.BalanceOf("CRED", testBorrower)
	require.NoError(t, err)
	require.Equal(t, "400", balance.String())

	err = engine.Unstake(testBorrower, big.NewInt(600))
	require.ErrorIs(t, err, ErrStakeLocked)

	engine.SetNowFunc(func() time.Time { return time.Unix(1_700_003_601, 0).UTC() })
	require.NoError(t, engine.Unstake(testBorrower, big.NewInt(600)))

	balance, err = tokens.BalanceOf("CRED", testBorrower)
	require.NoError(t, err)
	require.Equal(t, "1000", balance.String())
}

func TestStakeLockOnlyExtendsForward(t *testing.T) {
	engine, tokens, _ := newTestEngine(t)
	require.NoError(t, tokens.Mint("CRED", testBorrower, big.NewInt(1_000)))

	require.NoError(t, engine.Stake(testBorrower, big.NewInt(100), 7_200))
	require.NoError(t, engine.Stake(testBorrower, big.NewInt(100), 60))

	info, err := engine.StakeOf(testBorrower)
	require.NoError(t, err)
	require.Equal(t, uint64(1_700_007_200), info.LockUntil)
	require.Equal(t, "200", info.Amount.String())
}

func TestUnstakeRejectsOverdraw(t *testing.T) {
	engine, tokens, _ := newTestEngine(t)
	require.NoError(t, tokens.Mint("CRED", testBorrower, big.NewInt(100)))
	require.NoError(t, engine.Stake(testBorrower, big.NewInt(100), 0))

	err := engine.Unstake(testBorrower, big.NewInt(101))
	require.ErrorIs(t, err, ErrStakeInsufficient)
}

func TestSubmitKYCVerifiesIssuerSignature(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	issuerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	engine.SetIssuer(issuerKey.PubKey().Address().Raw())

	credential := [32]byte{0xaa, 0xbb}
	expiresAt := uint64(1_700_100_000)
	digest := KYCDigest(testBorrower, credential, expiresAt)
	sig, err := issuerKey.Sign(digest[:])
	require.NoError(t, err)

	require.NoError(t, engine.SubmitKYC(testBorrower, credential, expiresAt, sig))

	proof, ok, err := engine.KYCOf(testBorrower)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, credential, proof.CredentialHash)
	require.True(t, proof.ActiveAt(1_700_000_001))
	require.False(t, proof.ActiveAt(1_700_100_000))
}

func TestSubmitKYCRejectsForeignSigner(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	issuerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	engine.SetIssuer(issuerKey.PubKey().Address().Raw())

	rogueKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	credential := [32]byte{0x01}
	expiresAt := uint64(1_700_100_000)
	digest := KYCDigest(testBorrower, credential, expiresAt)
	sig, err := rogueKey.Sign(digest[:])
	require.NoError(t, err)

	err = engine.SubmitKYC(testBorrower, credential, expiresAt, sig)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestSubmitKYCRejectsExpiredProof(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.SubmitKYC(testBorrower, [32]byte{0x01}, 1_699_999_999, make([]byte, 65))
	require.ErrorIs(t, err, ErrProofExpired)
}

func TestGovernanceCountersRequireRole(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	recorder := [20]byte{0x10}

	err := engine.RecordVote(recorder, testBorrower)
	require.ErrorIs(t, err, ErrNotAuthorized)

	engine.SetAuthorizedGovernance(recorder, true)
	require.NoError(t, engine.RecordVote(recorder, testBorrower))
	require.NoError(t, engine.RecordVote(recorder, testBorrower))
	require.NoError(t, engine.RecordProposal(recorder, testBorrower))

	activity, err := engine.GovernanceOf(testBorrower)
	require.NoError(t, err)
	require.Equal(t, uint64(2), activity.Votes)
	require.Equal(t, uint64(1), activity.Proposals)
	require.Equal(t, uint64(1_700_000_000), activity.LastVoteAt)
}

func TestCrossChainImportEnforcesAllowlist(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	relayer := [20]byte{0x20}
	engine.SetAuthorizedRelayer(relayer, true)

	err := engine.ImportCrossChainScore(relayer, testBorrower, 5009, 80, 4, 4)
	require.ErrorIs(t, err, ErrChainNotAllowed)

	engine.SetAllowedChain(5009, true)
	err = engine.ImportCrossChainScore(relayer, testBorrower, 5009, 101, 4, 4)
	require.ErrorIs(t, err, ErrScoreOutOfRange)

	require.NoError(t, engine.ImportCrossChainScore(relayer, testBorrower, 5009, 80, 4, 4))
	// last write wins per chain selector
	require.NoError(t, engine.ImportCrossChainScore(relayer, testBorrower, 5009, 90, 5, 5))

	scores, err := engine.CrossChainOf(testBorrower)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.Equal(t, uint64(90), scores[0].Score)
}

func TestIdentityRegistrationAndLinking(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	hash := [32]byte{0x42}

	require.NoError(t, engine.RegisterIdentity(testBorrower, hash))

	err := engine.RegisterIdentity(testBorrower, [32]byte{0x43})
	require.ErrorIs(t, err, ErrWalletBound)

	err = engine.RegisterIdentity([20]byte{0x30}, hash)
	require.ErrorIs(t, err, ErrHashClaimed)

	for i := 0; i < MaxLinkedWallets; i++ {
		wallet := [20]byte{0x40, byte(i + 1)}
		require.NoError(t, engine.LinkWallet(testBorrower, wallet))
	}
	err = engine.LinkWallet(testBorrower, [20]byte{0x50})
	require.ErrorIs(t, err, ErrLinkLimit)

	identity, ok, err := engine.IdentityOf([20]byte{0x40, 0x01})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testBorrower, identity.Primary)
	require.Len(t, identity.Linked, MaxLinkedWallets)
}

func TestLinkWalletRejectsBoundWallet(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	require.NoError(t, engine.RegisterIdentity(testBorrower, [32]byte{0x01}))
	other := [20]byte{0x31}
	require.NoError(t, engine.RegisterIdentity(other, [32]byte{0x02}))

	err := engine.LinkWallet(testBorrower, other)
	require.ErrorIs(t, err, ErrWalletBound)
}
