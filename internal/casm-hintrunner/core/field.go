// Package core provides the finite-field arithmetic used to represent
// CASM immediates and memory-cell contents.
package core

import (
	"fmt"
	"math/big"
)

// Prime is the StarkNet field modulus: 2^251 + 17*2^192 + 1.
var Prime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	aux := new(big.Int).Lsh(big.NewInt(17), 192)
	p.Add(p, aux)
	p.Add(p, big.NewInt(1))
	return p
}()

// Field represents a finite field with modular arithmetic operations.
type Field struct {
	modulus *big.Int
}

// FieldElement represents an element in a finite field.
type FieldElement struct {
	field *Field
	value *big.Int
}

// NewField creates a new finite field with the given modulus.
func NewField(modulus *big.Int) (*Field, error) {
	if modulus.Cmp(big.NewInt(2)) <= 0 {
		return nil, fmt.Errorf("modulus must be greater than 2")
	}
	return &Field{modulus: new(big.Int).Set(modulus)}, nil
}

// StarkNetField returns the fixed 2^251 + 17*2^192 + 1 field used by
// every CASM program and hint in this package.
func StarkNetField() *Field {
	f, err := NewField(Prime)
	if err != nil {
		// Prime is a fixed value greater than 2; this cannot fail.
		panic(err)
	}
	return f
}

// Modulus returns the field modulus.
func (f *Field) Modulus() *big.Int {
	return new(big.Int).Set(f.modulus)
}

// NewElement creates a new field element from a big.Int, normalizing it
// into [0, modulus).
func (f *Field) NewElement(value *big.Int) *FieldElement {
	normalized := new(big.Int).Mod(value, f.modulus)
	return &FieldElement{field: f, value: normalized}
}

// NewElementFromInt64 creates a new field element from an int64.
func (f *Field) NewElementFromInt64(value int64) *FieldElement {
	return f.NewElement(big.NewInt(value))
}

// NewElementFromUint64 creates a new field element from a uint64.
func (f *Field) NewElementFromUint64(value uint64) *FieldElement {
	return f.NewElement(new(big.Int).SetUint64(value))
}

// Zero returns the additive identity.
func (f *Field) Zero() *FieldElement {
	return f.NewElement(big.NewInt(0))
}

// One returns the multiplicative identity.
func (f *Field) One() *FieldElement {
	return f.NewElement(big.NewInt(1))
}

// Equals reports whether two fields share a modulus.
func (f *Field) Equals(other *Field) bool {
	return f.modulus.Cmp(other.modulus) == 0
}

// Big returns the value as a big.Int copy.
func (fe *FieldElement) Big() *big.Int {
	return new(big.Int).Set(fe.value)
}

// Field returns the field this element belongs to.
func (fe *FieldElement) Field() *Field {
	return fe.field
}

// Add performs field addition.
func (fe *FieldElement) Add(other *FieldElement) *FieldElement {
	if !fe.field.Equals(other.field) {
		panic("cannot add elements from different fields")
	}
	result := new(big.Int).Add(fe.value, other.value)
	return fe.field.NewElement(result)
}

// Sub performs field subtraction.
func (fe *FieldElement) Sub(other *FieldElement) *FieldElement {
	if !fe.field.Equals(other.field) {
		panic("cannot subtract elements from different fields")
	}
	result := new(big.Int).Sub(fe.value, other.value)
	return fe.field.NewElement(result)
}

// Neg returns the additive inverse (negation) of the field element.
func (fe *FieldElement) Neg() *FieldElement {
	result := new(big.Int).Neg(fe.value)
	return fe.field.NewElement(result)
}

// Mul performs field multiplication.
func (fe *FieldElement) Mul(other *FieldElement) *FieldElement {
	if !fe.field.Equals(other.field) {
		panic("cannot multiply elements from different fields")
	}
	result := new(big.Int).Mul(fe.value, other.value)
	return fe.field.NewElement(result)
}

// LessThan compares the reduced values of two field elements. Callers
// that need the unreduced big-integer comparison used by the TestLessThan
// hints should compare Big() values directly rather than going through
// the field element.
func (fe *FieldElement) LessThan(other *FieldElement) bool {
	return fe.value.Cmp(other.value) < 0
}

// Equal checks if two field elements are equal.
func (fe *FieldElement) Equal(other *FieldElement) bool {
	if !fe.field.Equals(other.field) {
		return false
	}
	return fe.value.Cmp(other.value) == 0
}

// IsZero checks if the element is zero.
func (fe *FieldElement) IsZero() bool {
	return fe.value.Sign() == 0
}

// IsOne checks if the element is one.
func (fe *FieldElement) IsOne() bool {
	return fe.value.Cmp(big.NewInt(1)) == 0
}

// String returns a decimal string representation of the field element.
func (fe *FieldElement) String() string {
	return fe.value.String()
}

// Bytes returns the big-endian byte representation of the field element.
func (fe *FieldElement) Bytes() []byte {
	return fe.value.Bytes()
}
