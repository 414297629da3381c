package server

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wlfb/bankline/internal/bank"
	"github.com/wlfb/bankline/internal/logger"
	"github.com/wlfb/bankline/internal/wire"
)

// Session drives the command state machine for one authenticated
// connection: read a command line, run its dialogue against the ledger,
// report the outcome, loop. The session exits when the peer disconnects.
type Session struct {
	id       string
	clientID string
	ledger   *bank.Ledger
	ch       *wire.Channel
	poll     time.Duration
	log      *logger.Logger
}

func newSession(id, clientID string, ledger *bank.Ledger, ch *wire.Channel, poll time.Duration) *Session {
	return &Session{
		id:       id,
		clientID: clientID,
		ledger:   ledger,
		ch:       ch,
		poll:     poll,
		log:      logger.Global().WithPrefix(clientID),
	}
}

// Close releases the session's connection, unblocking a pending read.
func (s *Session) Close() {
	_ = s.ch.Close()
}

// Run loops over command lines until the peer disconnects.
func (s *Session) Run() {
	defer s.Close()

	for {
		line, err := s.ch.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("Client[id:%s] has disconnected", s.clientID)
			} else {
				s.log.Error("Read failed, terminating session: %v", err)
			}
			return
		}

		if err := s.dispatch(line); err != nil {
			s.log.Error("Session terminated mid-command: %v", err)
			return
		}
	}
}

// dispatch runs one command dialogue. Validation faults are reported to
// the client and consumed; only I/O errors are returned, and they are
// terminal. Every dialogue ends with an END message.
func (s *Session) dispatch(line string) error {
	var err error
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "add":
		err = s.cmdAdd()
	case "sub", "subtract":
		err = s.cmdSub()
	case "transfer":
		err = s.cmdTransfer()
	default:
		err = s.ch.Send(wire.TypeError,
			fmt.Sprintf("Unknown command %q. Supported commands are: add, sub, transfer.", line))
	}

	if err != nil {
		if !isValidation(err) {
			return err
		}
		if sendErr := s.ch.Send(wire.TypeError, err.Error()); sendErr != nil {
			return sendErr
		}
	}

	return s.ch.Send(wire.TypeEnd, "")
}

// locked runs fn inside the ledger's critical section. A contended
// acquisition notifies the client once with a WAIT message; the lock is
// released unconditionally when the dialogue ends, validation failure
// included.
func (s *Session) locked(fn func() error) error {
	s.ledger.Acquire(s.poll, func() {
		s.log.Info("Waiting for the ledger lock")
		_ = s.ch.Send(wire.TypeWait, "Waiting for lock to be released...")
	})
	defer s.ledger.Release()

	return fn()
}

func (s *Session) cmdAdd() error {
	return s.locked(func() error {
		amount, err := s.askAmount("Enter amount to add:")
		if err != nil {
			return err
		}

		balance, err := s.ledger.Add(s.clientID, amount)
		if err != nil {
			return err
		}

		return s.ch.Send(wire.TypeMessage,
			fmt.Sprintf("Added %s to account %s. New balance: %s",
				formatAmount(amount), s.clientID, formatAmount(balance)))
	})
}

func (s *Session) cmdSub() error {
	return s.locked(func() error {
		amount, err := s.askAmount("Enter amount to subtract:")
		if err != nil {
			return err
		}

		balance, err := s.ledger.Sub(s.clientID, amount)
		if err != nil {
			return err
		}

		return s.ch.Send(wire.TypeMessage,
			fmt.Sprintf("Subtracted %s from account %s. New balance: %s",
				formatAmount(amount), s.clientID, formatAmount(balance)))
	})
}

func (s *Session) cmdTransfer() error {
	return s.locked(func() error {
		receiver, err := s.ch.Ask("Enter the receiver's account ID:")
		if err != nil {
			return err
		}

		amount, err := s.askAmount("Enter amount to transfer:")
		if err != nil {
			return err
		}

		balance, overdrawn, err := s.ledger.Transfer(s.clientID, receiver, amount)
		if err != nil {
			return err
		}

		if overdrawn {
			if err := s.ch.Send(wire.TypeMessage,
				"Warning: transfer amount exceeds the sender's balance"); err != nil {
				return err
			}
		}

		return s.ch.Send(wire.TypeMessage,
			fmt.Sprintf("Transferred %s from %s to %s. Sender's new balance: %s",
				formatAmount(amount), s.clientID, receiver, formatAmount(balance)))
	})
}

// askAmount prompts for a numeric amount. Garbage input is an
// ErrInvalidAmount, reported like any other validation fault.
func (s *Session) askAmount(prompt string) (float64, error) {
	raw, err := s.ch.Ask(prompt)
	if err != nil {
		return 0, err
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", bank.ErrInvalidAmount, raw)
	}

	s.log.Debug("Amount entered: %v", amount)
	return amount, nil
}

// isValidation reports whether err is a domain fault the client should
// see as an ERROR message rather than a terminal condition.
func isValidation(err error) bool {
	return errors.Is(err, bank.ErrInvalidAmount) ||
		errors.Is(err, bank.ErrInvalidDestination) ||
		errors.Is(err, bank.ErrUnknownAccount)
}

// formatAmount renders integral amounts with one decimal place
// ("100.0") and everything else in shortest form ("12.34").
func formatAmount(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
