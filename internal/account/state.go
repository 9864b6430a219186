// Package account owns the shared financial state of the pipeline. Every
// mutation runs under one mutex so that concurrent admissions can never
// both pass against the same stale balance.
package account

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/errors"
)

var (
	ErrUnknownReservation = errors.New("unknown reservation token")
	ErrIntegrityViolation = errors.New("account integrity violation")
)

// View is a consistent read of the account taken inside the admission
// critical section.
type View struct {
	Balance        decimal.Decimal
	Reserved       decimal.Decimal
	Exposure       decimal.Decimal
	CommittedCount int
}

// State holds cash balance, reserved cash for in-flight intents, and open
// exposure. Reservations are ledgered by token so each one is released or
// converted exactly once.
type State struct {
	mu sync.Mutex

	balance  decimal.Decimal
	reserved decimal.Decimal
	exposure decimal.Decimal

	// committed counts outstanding reservations plus open positions.
	committed int

	nextToken    uint64
	reservations map[uint64]decimal.Decimal
}

func New(balance decimal.Decimal) *State {
	return &State{
		balance:      balance,
		reservations: make(map[uint64]decimal.Decimal),
	}
}

// Admit evaluates fn against a consistent view and, when fn approves a
// size, reserves it and mints a reservation token. The evaluation and the
// reserve increment are one indivisible unit.
func (s *State) Admit(fn func(View) (decimal.Decimal, error)) (uint64, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size, err := fn(s.viewLocked())
	if err != nil {
		return 0, decimal.Zero, err
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return 0, decimal.Zero, ErrIntegrityViolation
	}

	s.nextToken++
	token := s.nextToken
	s.reserved = s.reserved.Add(size)
	s.committed++
	s.reservations[token] = size
	return token, size, nil
}

// ConvertReservation turns the filled portion of a reservation into open
// exposure and releases any unfilled remainder. The position stays in the
// committed count. A fill slightly above the reservation is legitimate,
// the venue rounds orders to whole contracts; the excess comes out of
// free cash so the filled obligation is always on the books.
func (s *State) ConvertReservation(token uint64, filled decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.reservations[token]
	if !ok {
		return ErrUnknownReservation
	}
	if filled.LessThanOrEqual(decimal.Zero) {
		return ErrIntegrityViolation
	}
	delete(s.reservations, token)
	s.reserved = s.reserved.Sub(held)
	s.exposure = s.exposure.Add(filled)
	return nil
}

// ReleaseReservation releases the full reservation after a rejection or
// cancel. A second release of the same token is an error, never a silent
// double credit.
func (s *State) ReleaseReservation(token uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.reservations[token]
	if !ok {
		return ErrUnknownReservation
	}
	delete(s.reservations, token)
	s.reserved = s.reserved.Sub(held)
	s.committed--
	return nil
}

// ReleaseExposure returns closed-position capital to the balance and
// settles realized profit or loss against it.
func (s *State) ReleaseExposure(size, realized decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if size.LessThanOrEqual(decimal.Zero) || size.GreaterThan(s.exposure) {
		return ErrIntegrityViolation
	}
	s.exposure = s.exposure.Sub(size)
	s.balance = s.balance.Add(realized)
	s.committed--
	return nil
}

// ReduceExposure settles a partially closed position: the sold portion
// leaves exposure and its realized profit or loss lands in the balance.
// The position stays in the committed count because the remainder is
// still held.
func (s *State) ReduceExposure(size, realized decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if size.LessThanOrEqual(decimal.Zero) || size.GreaterThan(s.exposure) {
		return ErrIntegrityViolation
	}
	s.exposure = s.exposure.Sub(size)
	s.balance = s.balance.Add(realized)
	return nil
}

// Sync replaces the cash balance with the exchange's authoritative figure.
func (s *State) Sync(balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}

// Snapshot returns a consistent copy of the current account figures.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *State) viewLocked() View {
	return View{
		Balance:        s.balance,
		Reserved:       s.reserved,
		Exposure:       s.exposure,
		CommittedCount: s.committed,
	}
}
