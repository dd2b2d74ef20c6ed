package vm

import (
	"fmt"
	"math/big"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
)

// Register names one of the two registers a CellRef can be based on.
type Register int

const (
	AP Register = iota
	FP
)

func (r Register) String() string {
	if r == AP {
		return "ap"
	}
	return "fp"
}

// CellRef is a (register, signed offset) operand that resolves to a VM
// address by adding the offset to the register's current value.
type CellRef struct {
	Register Register
	Offset   int16
}

func (c CellRef) String() string {
	if c.Offset >= 0 {
		return fmt.Sprintf("[%s + %d]", c.Register, c.Offset)
	}
	return fmt.Sprintf("[%s - %d]", c.Register, -c.Offset)
}

// CellToAddr resolves a CellRef to a concrete VM address.
func CellToAddr(vm *VirtualMachine, c CellRef) Relocatable {
	base := vm.Context.Ap
	if c.Register == FP {
		base = vm.Context.Fp
	}
	return Relocatable{SegmentIndex: ExecutionSegment, Offset: addSignedOffset(base, c.Offset)}
}

func addSignedOffset(base uint64, offset int16) uint64 {
	if offset >= 0 {
		return base + uint64(offset)
	}
	return base - uint64(-offset)
}

// DerefOrImmediate is either a cell reference to dereference, or an
// immediate field element, as used for the right-hand side of a BinOp.
type DerefOrImmediate struct {
	isImmediate bool
	cell        CellRef
	immediate   *core.FieldElement
}

// NewDerefOperand builds a DerefOrImmediate that dereferences a cell.
func NewDerefOperand(c CellRef) DerefOrImmediate {
	return DerefOrImmediate{cell: c}
}

// NewImmediateOperand builds a DerefOrImmediate that is a literal value.
func NewImmediateOperand(v *core.FieldElement) DerefOrImmediate {
	return DerefOrImmediate{isImmediate: true, immediate: v}
}

func (d DerefOrImmediate) String() string {
	if d.isImmediate {
		return fmt.Sprintf("%s", d.immediate)
	}
	return d.cell.String()
}

// Operation is the binary operator a BinOp ResOperand applies.
type Operation int

const (
	Add Operation = iota
	Mul
)

// ResOperand is a resolvable hint operand: a direct dereference, a
// double dereference, a literal, or a binary operation between a cell
// and a DerefOrImmediate.
type ResOperand struct {
	kind        resOperandKind
	cell        CellRef
	doubleDeref int16 // offset, valid when kind == resKindDoubleDeref
	immediate   *core.FieldElement
	op          Operation
	binOpB      DerefOrImmediate
}

type resOperandKind int

const (
	resKindDeref resOperandKind = iota
	resKindDoubleDeref
	resKindImmediate
	resKindBinOp
)

// ResOperandKind identifies which variant a ResOperand holds, exported
// so callers outside the package (notably the hint processor, decoding
// a SystemCall's system pointer) can branch on its shape.
type ResOperandKind int

const (
	ResKindDeref ResOperandKind = iota
	ResKindDoubleDeref
	ResKindImmediate
	ResKindBinOp
)

// Kind reports which variant r holds.
func (r ResOperand) Kind() ResOperandKind {
	return ResOperandKind(r.kind)
}

// Cell returns the CellRef operand: the whole cell for Deref/BinOp, or
// the pointer cell for DoubleDeref.
func (r ResOperand) Cell() CellRef {
	return r.cell
}

// DoubleDerefOffset returns the constant offset added to the
// dereferenced pointer, valid when Kind() == ResKindDoubleDeref.
func (r ResOperand) DoubleDerefOffset() int16 {
	return r.doubleDeref
}

// ImmediateValue returns the literal value, valid when
// Kind() == ResKindImmediate.
func (r ResOperand) ImmediateValue() *core.FieldElement {
	return r.immediate
}

// BinOpOperation returns the operator, valid when Kind() == ResKindBinOp.
func (r ResOperand) BinOpOperation() Operation {
	return r.op
}

// BinOpRhs returns the right-hand operand, valid when Kind() == ResKindBinOp.
func (r ResOperand) BinOpRhs() DerefOrImmediate {
	return r.binOpB
}

// IsImmediate reports whether d is a literal rather than a cell
// reference.
func (d DerefOrImmediate) IsImmediate() bool {
	return d.isImmediate
}

// Cell returns the referenced cell, valid when !IsImmediate().
func (d DerefOrImmediate) Cell() CellRef {
	return d.cell
}

// ImmediateValue returns the literal value, valid when IsImmediate().
func (d DerefOrImmediate) ImmediateValue() *core.FieldElement {
	return d.immediate
}

// NewDerefResOperand builds a ResOperand that reads a single cell.
func NewDerefResOperand(c CellRef) ResOperand {
	return ResOperand{kind: resKindDeref, cell: c}
}

// NewDoubleDerefResOperand builds a ResOperand that reads the cell
// pointed to by another cell, plus a constant offset.
func NewDoubleDerefResOperand(c CellRef, offset int16) ResOperand {
	return ResOperand{kind: resKindDoubleDeref, cell: c, doubleDeref: offset}
}

// NewImmediateResOperand builds a ResOperand that is a literal value.
func NewImmediateResOperand(v *core.FieldElement) ResOperand {
	return ResOperand{kind: resKindImmediate, immediate: v}
}

// NewBinOpResOperand builds a ResOperand computing op(a, b).
func NewBinOpResOperand(op Operation, a CellRef, b DerefOrImmediate) ResOperand {
	return ResOperand{kind: resKindBinOp, op: op, cell: a, binOpB: b}
}

func (r ResOperand) String() string {
	switch r.kind {
	case resKindDeref:
		return r.cell.String()
	case resKindDoubleDeref:
		return fmt.Sprintf("[[%s] + %d]", r.cell, r.doubleDeref)
	case resKindImmediate:
		return fmt.Sprintf("%s", r.immediate)
	default:
		opName := "+"
		if r.op == Mul {
			opName = "*"
		}
		return fmt.Sprintf("%s %s %s", r.cell, opName, r.binOpB)
	}
}

// GetCellValue reads the integer value currently stored at a cell.
func GetCellValue(vm *VirtualMachine, c CellRef) (*big.Int, error) {
	fe, err := vm.Memory.GetFieldElement(CellToAddr(vm, c))
	if err != nil {
		return nil, err
	}
	return fe.Big(), nil
}

// GetPtr reads the relocatable stored at a cell and advances it by
// offset (mod prime, per the spec's address-arithmetic invariant).
func GetPtr(vm *VirtualMachine, c CellRef, offset *big.Int) (Relocatable, error) {
	base, err := vm.Memory.GetRelocatable(CellToAddr(vm, c))
	if err != nil {
		return Relocatable{}, err
	}
	return base.AddMod(offset, core.Prime)
}

// GetDoubleDerefValue reads the integer value at *cell + offset.
func GetDoubleDerefValue(vm *VirtualMachine, c CellRef, offset *big.Int) (*big.Int, error) {
	addr, err := GetPtr(vm, c, offset)
	if err != nil {
		return nil, err
	}
	fe, err := vm.Memory.GetFieldElement(addr)
	if err != nil {
		return nil, err
	}
	return fe.Big(), nil
}

func resolveDerefOrImmediate(vm *VirtualMachine, d DerefOrImmediate) (*big.Int, error) {
	if d.isImmediate {
		return d.immediate.Big(), nil
	}
	return GetCellValue(vm, d.cell)
}

// ResolveValue evaluates a ResOperand against the live VM, per §4.1:
// BinOp addition/multiplication are unbounded big-integer operations,
// never reduced modulo the field at this layer.
func ResolveValue(vm *VirtualMachine, r ResOperand) (*big.Int, error) {
	switch r.kind {
	case resKindDeref:
		return GetCellValue(vm, r.cell)
	case resKindDoubleDeref:
		return GetDoubleDerefValue(vm, r.cell, big.NewInt(int64(r.doubleDeref)))
	case resKindImmediate:
		return new(big.Int).Set(r.immediate.Big()), nil
	case resKindBinOp:
		a, err := GetCellValue(vm, r.cell)
		if err != nil {
			return nil, err
		}
		b, err := resolveDerefOrImmediate(vm, r.binOpB)
		if err != nil {
			return nil, err
		}
		switch r.op {
		case Add:
			return new(big.Int).Add(a, b), nil
		case Mul:
			return new(big.Int).Mul(a, b), nil
		default:
			return nil, fmt.Errorf("unknown binary operator: %d", r.op)
		}
	default:
		return nil, fmt.Errorf("unknown ResOperand kind: %d", r.kind)
	}
}
