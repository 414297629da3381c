package bank

import (
	"fmt"
	"sync"
	"time"

	"github.com/wlfb/bankline/internal/consts"
	"github.com/wlfb/bankline/internal/logger"
)

// Ledger owns the fixed account set and the single mutual-exclusion lock
// shared by all sessions. At most one session runs inside the critical
// section at a time; the lock is held across a command's entire dialogue,
// including the prompt round-trips, not just the final mutation.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

// NewLedger creates a ledger with one account per id, each starting at
// initialBalance. The key set is fixed for the process lifetime.
func NewLedger(initialBalance float64, ids []string) (*Ledger, error) {
	l := &Ledger{accounts: make(map[string]*Account, len(ids))}
	for _, id := range ids {
		account, err := NewAccount(id, initialBalance)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", id, err)
		}
		l.accounts[account.ID()] = account
	}
	return l, nil
}

// account resolves an id case-insensitively.
func (l *Ledger) account(id string) (*Account, error) {
	account, ok := l.accounts[NormalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	return account, nil
}

// Add deposits amount into the given account and returns the new balance.
// The caller must hold the ledger lock.
func (l *Ledger) Add(id string, amount float64) (float64, error) {
	account, err := l.account(id)
	if err != nil {
		return 0, err
	}

	balance, err := account.Deposit(amount)
	if err != nil {
		return 0, err
	}

	logger.Info("Added %v to account %s. New balance: %v", amount, account.ID(), balance)
	return balance, nil
}

// Sub withdraws amount from the given account and returns the new
// balance. The caller must hold the ledger lock.
func (l *Ledger) Sub(id string, amount float64) (float64, error) {
	account, err := l.account(id)
	if err != nil {
		return 0, err
	}

	balance, err := account.Withdraw(amount)
	if err != nil {
		return 0, err
	}

	logger.Info("Subtracted %v from account %s. New balance: %v", amount, account.ID(), balance)
	return balance, nil
}

// Transfer moves amount between two accounts and returns the sender's new
// balance. The overdrawn result reports whether the amount exceeded the
// sender's balance before the debit (the transfer still proceeds). The
// caller must hold the ledger lock.
func (l *Ledger) Transfer(fromID, toID string, amount float64) (balance float64, overdrawn bool, err error) {
	from, err := l.account(fromID)
	if err != nil {
		return 0, false, err
	}
	to, err := l.account(toID)
	if err != nil {
		return 0, false, err
	}

	overdrawn = amount > from.Balance()

	balance, err = from.Transfer(amount, to)
	if err != nil {
		return 0, false, err
	}

	logger.Info("Transferred %v from account %s (%v) to %s (%v)",
		amount, from.ID(), from.Balance(), to.ID(), to.Balance())
	return balance, overdrawn, nil
}

// Balance returns the current balance of an account. The caller must hold
// the ledger lock for the value to be meaningful.
func (l *Ledger) Balance(id string) (float64, error) {
	account, err := l.account(id)
	if err != nil {
		return 0, err
	}
	return account.Balance(), nil
}

// Acquire takes the ledger lock by polling. On the first failed attempt
// it invokes onWait exactly once, so a contended session can tell its
// client it is waiting, then keeps retrying every interval until the lock
// is acquired. Acquisition order across sessions is whichever poll
// happens to succeed first after release.
func (l *Ledger) Acquire(interval time.Duration, onWait func()) {
	if interval <= 0 {
		interval = consts.DefaultLockPollInterval
	}

	notified := false
	for !l.mu.TryLock() {
		if !notified {
			logger.Debug("Ledger lock is contended, waiting")
			if onWait != nil {
				onWait()
			}
			notified = true
		}
		time.Sleep(interval)
	}

	logger.Debug("Ledger lock acquired")
}

// Release unlocks the ledger lock. It must be called unconditionally once
// the command's dialogue is over, including on validation failure.
func (l *Ledger) Release() {
	logger.Debug("Ledger lock released")
	l.mu.Unlock()
}
