package e2e

import (
	"context"
	"math/big"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creditchain/core/events"
	"creditchain/core/state"
	"creditchain/crypto"
	"creditchain/native/pricing"
	"creditchain/native/registry"
	"creditchain/native/score"
	"creditchain/native/token"
	"creditchain/native/vault"
	"creditchain/rpc"
	creditsdk "creditchain/sdk/credit"
	"creditchain/storage"
)

const (
	lifecycleToken = "e2e-token"
	lifecycleBase  = int64(1_700_000_000)
)

type lifecycleEnv struct {
	client   *creditsdk.Client
	tokens   *token.Ledger
	borrower crypto.Address
	keeper   crypto.Address
	clock    atomic.Int64
}

func newLifecycleEnv(t *testing.T) *lifecycleEnv {
	t.Helper()
	env := &lifecycleEnv{}
	env.clock.Store(lifecycleBase)
	now := func() time.Time { return time.Unix(env.clock.Load(), 0).UTC() }

	manager := state.NewManager(storage.NewMemDB())
	env.tokens = token.NewLedger(manager)

	vaultAddr := [20]byte{0xaa}
	reg := registry.NewEngine(manager)
	reg.SetTokenLedger(env.tokens, "CRED", [20]byte{0xab})
	reg.SetAuthorizedLender(vaultAddr, true)
	reg.SetNowFunc(now)

	weights := score.DefaultWeights()
	tiers := score.DefaultTierTable()
	require.NoError(t, tiers.Normalise())
	oracle := score.NewOracle(reg, weights, tiers)
	oracle.SetNowFunc(now)

	feed := pricing.NewManualFeed(24 * time.Hour)
	require.NoError(t, feed.SetDecimal("WETH", "1", time.Now().UTC()))

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(manager)
	vaultEngine.SetCollaborators(reg, oracle, feed, env.tokens)
	vaultEngine.SetModuleAddress(vaultAddr)
	vaultEngine.SetLiquidityToken("CUSD")
	vaultEngine.SetAllowedCollateral("WETH", true)
	vaultEngine.SetNowFunc(now)

	emitter := events.NewMemoryEmitter(0)
	reg.SetEmitter(emitter)
	vaultEngine.SetEmitter(emitter)

	borrowerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	env.borrower = borrowerKey.PubKey().Address()
	keeperKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	env.keeper = keeperKey.PubKey().Address()

	require.NoError(t, env.tokens.Mint("CUSD", vaultAddr, big.NewInt(1_000_000)))
	require.NoError(t, env.tokens.Mint("WETH", env.borrower.Raw(), big.NewInt(10_000)))
	require.NoError(t, env.tokens.Mint("CRED", env.borrower.Raw(), big.NewInt(500)))

	server := rpc.NewServer(rpc.Options{
		Registry:    reg,
		Scores:      oracle,
		Vault:       vaultEngine,
		Tokens:      env.tokens,
		Feed:        feed,
		Emitter:     emitter,
		BearerToken: lifecycleToken,
	})
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	client, err := creditsdk.New(httpServer.URL,
		creditsdk.WithHTTPClient(httpServer.Client()),
		creditsdk.WithBearerToken(lifecycleToken))
	require.NoError(t, err)
	env.client = client
	return env
}

func (env *lifecycleEnv) advance(d time.Duration) {
	env.clock.Add(int64(d / time.Second))
}

func TestBorrowRepayLifecycle(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()
	borrower := env.borrower.String()

	require.NoError(t, env.client.Stake(ctx, borrower, "500", 0))

	breakdown, err := env.client.Score(ctx, borrower)
	require.NoError(t, err)
	require.Equal(t, "bronze", breakdown.Tier)
	require.EqualValues(t, 50, breakdown.MaxLTV)

	receipt, err := env.client.Borrow(ctx, borrower, "WETH", "1000", "400")
	require.NoError(t, err)
	require.EqualValues(t, 1, receipt.LoanID)
	require.EqualValues(t, 50, receipt.MaxLTVPercent)

	balance, err := env.client.Balance(ctx, "CUSD", borrower)
	require.NoError(t, err)
	require.Equal(t, "400", balance)

	debt, err := env.client.Debt(ctx, receipt.LoanID)
	require.NoError(t, err)
	require.Equal(t, "400", debt)

	require.NoError(t, env.client.Repay(ctx, borrower, receipt.LoanID, "400"))

	loan, err := env.client.Loan(ctx, receipt.LoanID)
	require.NoError(t, err)
	require.Equal(t, "repaid", loan.Status)

	profile, err := env.client.Profile(ctx, borrower)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, profile.LoanIDs)
	require.Contains(t, profile.Assets, "WETH")
	require.Equal(t, "500", profile.Staked)

	// collateral comes back once the debt clears
	collateral, err := env.client.Balance(ctx, "WETH", borrower)
	require.NoError(t, err)
	require.Equal(t, "10000", collateral)
}

func TestLiquidationLifecycle(t *testing.T) {
	env := newLifecycleEnv(t)
	ctx := context.Background()
	borrower := env.borrower.String()
	keeper := env.keeper.String()

	receipt, err := env.client.Borrow(ctx, borrower, "WETH", "1000", "400")
	require.NoError(t, err)

	outcome, err := env.client.Liquidate(ctx, keeper, receipt.LoanID)
	require.NoError(t, err)
	require.Equal(t, "healthy", outcome)

	require.NoError(t, env.client.SetPrice(ctx, "WETH", "0.5"))

	outcome, err = env.client.Liquidate(ctx, keeper, receipt.LoanID)
	require.NoError(t, err)
	require.Equal(t, "graceArmed", outcome)

	outcome, err = env.client.Liquidate(ctx, keeper, receipt.LoanID)
	require.NoError(t, err)
	require.Equal(t, "gracePending", outcome)

	env.advance(25 * time.Hour)
	outcome, err = env.client.Liquidate(ctx, keeper, receipt.LoanID)
	require.NoError(t, err)
	require.Equal(t, "liquidated", outcome)

	loan, err := env.client.Loan(ctx, receipt.LoanID)
	require.NoError(t, err)
	require.Equal(t, "liquidated", loan.Status)

	keeperCut, err := env.client.Balance(ctx, "WETH", keeper)
	require.NoError(t, err)
	require.Equal(t, "50", keeperCut)

	// no insurance pool configured, the remainder returns to the borrower
	refund, err := env.client.Balance(ctx, "WETH", borrower)
	require.NoError(t, err)
	require.Equal(t, "9950", refund)

	recent, err := env.client.Events(ctx, 50)
	require.NoError(t, err)
	var sawLiquidation bool
	for _, event := range recent {
		if event.Type == "vault.loan.liquidated" {
			sawLiquidation = true
		}
	}
	require.True(t, sawLiquidation)
}
