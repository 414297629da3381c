package bank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wlfb/bankline/internal/logger"
)

// Account is a single balance holder. The id is normalized (trimmed,
// lowercased) at construction and immutable afterwards. Accounts carry no
// locking of their own: every mutation must happen while the caller holds
// the owning Ledger's lock.
type Account struct {
	id      string
	balance float64
}

// NewAccount creates an account with a normalized id and a non-negative
// starting balance.
func NewAccount(id string, initialBalance float64) (*Account, error) {
	normalized := NormalizeID(id)
	if normalized == "" {
		return nil, errors.New("account id cannot be empty")
	}
	if initialBalance < 0 {
		return nil, errors.New("initial balance cannot be negative")
	}

	return &Account{id: normalized, balance: initialBalance}, nil
}

// NormalizeID trims and lowercases an account identifier. Normalization
// happens once at the boundary; the normalized form is the sole map key.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ID returns the normalized account identifier.
func (a *Account) ID() string {
	return a.id
}

// Balance returns the current balance.
func (a *Account) Balance() float64 {
	return a.balance
}

// Deposit adds amount to the balance and returns the result. The amount
// must be strictly positive; there is no upper bound.
func (a *Account) Deposit(amount float64) (float64, error) {
	if amount <= 0 {
		return a.balance, ErrInvalidAmount
	}

	a.balance += amount
	return a.balance, nil
}

// Withdraw subtracts amount from the balance and returns the result. The
// amount must be strictly positive; the balance is allowed to go negative.
func (a *Account) Withdraw(amount float64) (float64, error) {
	if amount <= 0 {
		return a.balance, ErrInvalidAmount
	}

	a.balance -= amount
	return a.balance, nil
}

// Transfer moves amount from this account to dest as a withdraw followed
// by a deposit. An amount above the current balance is allowed but logged
// as a warning before the debit is applied. Returns the sender's
// resulting balance.
func (a *Account) Transfer(amount float64, dest *Account) (float64, error) {
	if dest == nil {
		return a.balance, fmt.Errorf("%w: recipient account is missing", ErrInvalidDestination)
	}
	if dest == a {
		return a.balance, fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidDestination)
	}
	if amount <= 0 {
		return a.balance, ErrInvalidAmount
	}

	if amount > a.balance {
		logger.Warn("Transfer of %v from account %s exceeds its balance of %v", amount, a.id, a.balance)
	}

	if _, err := a.Withdraw(amount); err != nil {
		return a.balance, err
	}
	if _, err := dest.Deposit(amount); err != nil {
		return a.balance, err
	}

	return a.balance, nil
}
