package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrNilState            = errors.New("token ledger: state not configured")
	ErrInvalidAmount       = errors.New("token ledger: amount must be positive")
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")
	ErrSymbolRequired      = errors.New("token ledger: symbol required")
)

// ledgerState is the subset of state manager functionality the ledger needs.
type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

const balancePrefix = "token/balance/"

func balanceKey(symbol string, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%s/%x", balancePrefix, symbol, addr))
}

// NormalizeSymbol canonicalises a token symbol to upper case.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Ledger tracks fungible token balances per (symbol, address) pair. It is the
// custody collaborator for the vault and the staking flows: transfers are
// atomic and fee-free, so the amount debited always equals the amount
// credited.
type Ledger struct {
	state ledgerState
}

// NewLedger constructs a ledger bound to the provided state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// BalanceOf returns the balance held by addr for the given symbol. Missing
// entries read as zero.
func (l *Ledger) BalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, ErrSymbolRequired
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(balanceKey(sym, addr), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Mint credits newly issued tokens to the recipient. Callers gate access; the
// ledger itself performs no authorization.
func (l *Ledger) Mint(symbol string, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return ErrSymbolRequired
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(sym, to)
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(balance, amount)
	return l.state.KVPut(balanceKey(sym, to), balance)
}

// Transfer moves amount from one holder to another, failing when the payer
// balance is insufficient. Self transfers are no-ops that still validate the
// amount.
func (l *Ledger) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return ErrSymbolRequired
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := l.BalanceOf(sym, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := l.BalanceOf(sym, to)
	if err != nil {
		return err
	}
	fromBalance = new(big.Int).Sub(fromBalance, amount)
	toBalance = new(big.Int).Add(toBalance, amount)
	if err := l.state.KVPut(balanceKey(sym, from), fromBalance); err != nil {
		return err
	}
	return l.state.KVPut(balanceKey(sym, to), toBalance)
}
