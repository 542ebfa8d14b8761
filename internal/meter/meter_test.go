package meter

import (
	"errors"
	"testing"
)

func TestResolveDeductsHighestPriorityFirst(t *testing.T) {
	balances := []Balance{
		{SourceID: "crypto", Slug: "crypto", Balance: 5, Priority: 10},
		{SourceID: "sub", Slug: "subscription", Balance: 3, Priority: 50},
	}

	res, errResolve := Resolve(balances, 4)
	if errResolve != nil {
		t.Fatalf("expected resolution, got %v", errResolve)
	}
	if res.Adjusted[0].SourceID != "sub" {
		t.Fatalf("expected subscription first, got %s", res.Adjusted[0].SourceID)
	}
	if res.Adjusted[0].Balance != 0 {
		t.Fatalf("expected subscription drained, got %f", res.Adjusted[0].Balance)
	}
	if res.Adjusted[1].Balance != 4 {
		t.Fatalf("expected crypto at 4, got %f", res.Adjusted[1].Balance)
	}
	if res.Selected.SourceID != "crypto" {
		t.Fatalf("expected crypto selected, got %s", res.Selected.SourceID)
	}
}

func TestResolveSelectsHighestPriorityWithRemainder(t *testing.T) {
	balances := []Balance{
		{SourceID: "pack", Balance: 2, Priority: 1},
		{SourceID: "sub", Balance: 10, Priority: 9},
	}

	res, errResolve := Resolve(balances, 1.5)
	if errResolve != nil {
		t.Fatalf("expected resolution, got %v", errResolve)
	}
	if res.Selected.SourceID != "sub" {
		t.Fatalf("expected sub selected, got %s", res.Selected.SourceID)
	}
	if res.Selected.Balance != 8.5 {
		t.Fatalf("expected adjusted balance 8.5, got %f", res.Selected.Balance)
	}
	if got := res.Available(); got != 10.5 {
		t.Fatalf("expected available 10.5, got %f", got)
	}
}

func TestResolveInsufficientBalance(t *testing.T) {
	balances := []Balance{
		{SourceID: "sub", Balance: 1, Priority: 9},
		{SourceID: "pack", Balance: 0.5, Priority: 1},
	}

	_, errResolve := Resolve(balances, 2)
	if !errors.Is(errResolve, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", errResolve)
	}
}

func TestResolveEmptySources(t *testing.T) {
	_, errResolve := Resolve(nil, 0)
	if !errors.Is(errResolve, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", errResolve)
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	balances := []Balance{{SourceID: "sub", Balance: 3, Priority: 1}}
	if _, errResolve := Resolve(balances, 1); errResolve != nil {
		t.Fatalf("expected resolution, got %v", errResolve)
	}
	if balances[0].Balance != 3 {
		t.Fatalf("input mutated: got %f", balances[0].Balance)
	}
}
