package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"creditchain/core/state"
	"creditchain/storage"
)

var (
	alice = [20]byte{0x01}
	bob   = [20]byte{0x02}
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(state.NewManager(storage.NewMemDB()))
}

func TestMintAndBalance(t *testing.T) {
	ledger := newLedger(t)

	balance, err := ledger.BalanceOf("CUSD", alice)
	require.NoError(t, err)
	require.Equal(t, "0", balance.String())

	require.NoError(t, ledger.Mint("CUSD", alice, big.NewInt(1_000)))
	require.NoError(t, ledger.Mint("cusd ", alice, big.NewInt(500)))

	balance, err = ledger.BalanceOf("CUSD", alice)
	require.NoError(t, err)
	require.Equal(t, "1500", balance.String())
}

func TestTransfer(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.Mint("CUSD", alice, big.NewInt(1_000)))

	require.NoError(t, ledger.Transfer("CUSD", alice, bob, big.NewInt(400)))

	aliceBal, err := ledger.BalanceOf("CUSD", alice)
	require.NoError(t, err)
	require.Equal(t, "600", aliceBal.String())
	bobBal, err := ledger.BalanceOf("CUSD", bob)
	require.NoError(t, err)
	require.Equal(t, "400", bobBal.String())
}

func TestTransferRejectsOverdraw(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.Mint("CUSD", alice, big.NewInt(100)))

	err := ledger.Transfer("CUSD", alice, bob, big.NewInt(101))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = ledger.Transfer("CUSD", alice, bob, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = ledger.Transfer("", alice, bob, big.NewInt(10))
	require.ErrorIs(t, err, ErrSymbolRequired)
}

func TestSelfTransferIsNoop(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.Mint("CUSD", alice, big.NewInt(100)))

	require.NoError(t, ledger.Transfer("CUSD", alice, alice, big.NewInt(100)))

	balance, err := ledger.BalanceOf("CUSD", alice)
	require.NoError(t, err)
	require.Equal(t, "100", balance.String())
}

func TestBalancesIsolatedPerSymbol(t *testing.T) {
	ledger := newLedger(t)
	require.NoError(t, ledger.Mint("CUSD", alice, big.NewInt(100)))

	balance, err := ledger.BalanceOf("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, "0", balance.String())
}
