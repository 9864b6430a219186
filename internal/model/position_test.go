package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPositionTransitions(t *testing.T) {
	cases := []struct {
		name string
		from PositionStatus
		to   PositionStatus
		ok   bool
	}{
		{"pending to open", PositionPending, PositionOpen, true},
		{"pending to cancelled", PositionPending, PositionCancelled, true},
		{"open to closing", PositionOpen, PositionClosing, true},
		{"closing to closed", PositionClosing, PositionClosed, true},
		{"closing back to open", PositionClosing, PositionOpen, true},
		{"closing to needs attention", PositionClosing, PositionNeedsAttention, true},
		{"pending to closed", PositionPending, PositionClosed, false},
		{"open to closed", PositionOpen, PositionClosed, false},
		{"closed is terminal", PositionClosed, PositionOpen, false},
		{"cancelled is terminal", PositionCancelled, PositionOpen, false},
		{"needs attention is terminal", PositionNeedsAttention, PositionClosing, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Position{Status: tc.from}
			err := p.Transition(tc.to)
			if tc.ok {
				if err != nil {
					t.Fatalf("transition rejected: %v", err)
				}
				if p.Status != tc.to {
					t.Fatalf("status = %v, want %v", p.Status, tc.to)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
			if p.Status != tc.from {
				t.Fatalf("status moved on rejected transition: %v", p.Status)
			}
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []PositionStatus{PositionClosed, PositionCancelled, PositionNeedsAttention}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%v should be terminal", s)
		}
	}
	live := []PositionStatus{PositionPending, PositionOpen, PositionClosing}
	for _, s := range live {
		if s.Terminal() {
			t.Fatalf("%v should not be terminal", s)
		}
	}
}

func TestUnrealizedPnL(t *testing.T) {
	p := Position{
		EntryPrice: decimal.NewFromFloat(0.40),
		Size:       decimal.NewFromInt(30),
	}
	// 75 contracts, price moves a dime.
	pnl := p.UnrealizedPnL(decimal.NewFromFloat(0.50))
	if !pnl.Equal(decimal.NewFromFloat(7.5)) {
		t.Fatalf("pnl = %s, want 7.5", pnl)
	}

	loss := p.UnrealizedPnL(decimal.NewFromFloat(0.30))
	if !loss.Equal(decimal.NewFromFloat(-7.5)) {
		t.Fatalf("loss = %s, want -7.5", loss)
	}
}

func TestSideOpposite(t *testing.T) {
	if SideYes.Opposite() != SideNo || SideNo.Opposite() != SideYes {
		t.Fatal("side opposite mismatch")
	}
	if SideUnknown.Opposite() != SideUnknown {
		t.Fatal("unknown side has no opposite")
	}
}

func TestImpliedProbability(t *testing.T) {
	m := Market{
		YesPrice: decimal.NewFromFloat(0.40),
		NoPrice:  decimal.NewFromFloat(0.60),
	}
	if !m.ImpliedProbability(SideYes).Equal(decimal.NewFromFloat(0.40)) {
		t.Fatal("yes probability mismatch")
	}
	if !m.ImpliedProbability(SideNo).Equal(decimal.NewFromFloat(0.60)) {
		t.Fatal("no probability mismatch")
	}
}
