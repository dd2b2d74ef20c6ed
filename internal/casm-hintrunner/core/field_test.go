package core

import (
	"math/big"
	"testing"
)

func TestStarkNetFieldReducesToPrime(t *testing.T) {
	f := StarkNetField()
	over := new(big.Int).Add(Prime, big.NewInt(5))
	e := f.NewElement(over)

	if e.Big().Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected 5, got %s", e.Big())
	}
}

func TestFieldElementArithmetic(t *testing.T) {
	f := StarkNetField()
	a := f.NewElementFromInt64(17)
	b := f.NewElementFromInt64(5)

	if got := a.Add(b); got.Big().Cmp(big.NewInt(22)) != 0 {
		t.Errorf("Add: got %s, want 22", got)
	}
	if got := a.Sub(b); got.Big().Cmp(big.NewInt(12)) != 0 {
		t.Errorf("Sub: got %s, want 12", got)
	}
	if got := a.Mul(b); got.Big().Cmp(big.NewInt(85)) != 0 {
		t.Errorf("Mul: got %s, want 85", got)
	}
	if !b.LessThan(a) {
		t.Errorf("expected 5 < 17")
	}
	if a.LessThan(b) {
		t.Errorf("expected 17 not less than 5")
	}
}

func TestFieldElementNegWraps(t *testing.T) {
	f := StarkNetField()
	one := f.One()
	neg := one.Neg()

	want := new(big.Int).Sub(Prime, big.NewInt(1))
	if neg.Big().Cmp(want) != 0 {
		t.Errorf("Neg: got %s, want %s", neg, want)
	}
}

func TestFieldElementIsZeroIsOne(t *testing.T) {
	f := StarkNetField()
	if !f.Zero().IsZero() {
		t.Error("Zero() should be zero")
	}
	if !f.One().IsOne() {
		t.Error("One() should be one")
	}
	if f.NewElementFromInt64(2).IsZero() {
		t.Error("2 should not be zero")
	}
}
