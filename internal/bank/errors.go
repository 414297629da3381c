// Package bank holds the in-memory account set, the domain rules for
// moving money between accounts, and the single ledger lock that
// serializes mutations across concurrently connected sessions.
package bank

import "errors"

// Domain errors. Sessions classify these at the command boundary and
// report them to the client as ERROR messages; they are never terminal.
var (
	// ErrInvalidAmount is returned when an amount is zero, negative, or
	// could not be parsed as a number.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInvalidDestination is returned when a transfer targets a missing
	// account reference or the sending account itself.
	ErrInvalidDestination = errors.New("invalid transfer destination")

	// ErrUnknownAccount is returned when an account id does not resolve
	// against the ledger.
	ErrUnknownAccount = errors.New("unknown account")
)
