package casmhintrunner

import (
	"math/big"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/hints"
	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/vm"
)

// FieldElement represents an element of the StarkNet field, the
// public type for every immediate and returned value in this package.
type FieldElement = core.FieldElement

// Field represents the StarkNet finite field.
type Field = core.Field

// Register names one of the two registers a CellRef can be based on.
type Register = vm.Register

// AP and FP are the two CASM registers.
const (
	AP = vm.AP
	FP = vm.FP
)

// CellRef is a (register, signed offset) operand.
type CellRef = vm.CellRef

// ResOperand is a resolvable hint operand.
type ResOperand = vm.ResOperand

// Operation is the binary operator a BinOp ResOperand applies.
type Operation = vm.Operation

// Add and Mul are the two operations a BinOp ResOperand can apply.
const (
	Add = vm.Add
	Mul = vm.Mul
)

// NewDerefResOperand, NewDoubleDerefResOperand, NewImmediateResOperand
// and NewBinOpResOperand build the four ResOperand shapes.
var (
	NewDerefResOperand       = vm.NewDerefResOperand
	NewDoubleDerefResOperand = vm.NewDoubleDerefResOperand
	NewImmediateResOperand   = vm.NewImmediateResOperand
	NewBinOpResOperand       = vm.NewBinOpResOperand
	NewDerefOperand          = vm.NewDerefOperand
	NewImmediateOperand      = vm.NewImmediateOperand
)

// InstructionBody is a single encoded CASM instruction.
type InstructionBody = vm.InstructionBody

// Op1Src, ResLogic, PcUpdate, ApUpdate and Opcode are the instruction
// body's discrete fields.
type (
	Op1Src   = vm.Op1Src
	ResLogic = vm.ResLogic
	PcUpdate = vm.PcUpdate
	ApUpdate = vm.ApUpdate
	Opcode   = vm.Opcode
)

const (
	Op1SrcOp0 = vm.Op1SrcOp0
	Op1SrcImm = vm.Op1SrcImm
	Op1SrcFP  = vm.Op1SrcFP
	Op1SrcAP  = vm.Op1SrcAP

	ResUnconstrained = vm.ResUnconstrained
	ResOp1           = vm.ResOp1
	ResAdd           = vm.ResAdd
	ResMul           = vm.ResMul

	PcNextInstr = vm.PcNextInstr
	PcJump      = vm.PcJump
	PcJumpRel   = vm.PcJumpRel
	PcJnz       = vm.PcJnz

	ApRegular = vm.ApRegular
	ApAdd1    = vm.ApAdd1
	ApAdd2    = vm.ApAdd2
	ApAddRes  = vm.ApAddRes

	OpNOp      = vm.OpNOp
	OpAssertEq = vm.OpAssertEq
	OpCall     = vm.OpCall
	OpRet      = vm.OpRet
)

// Hint is a single instance of the CASM hint IR.
type Hint = hints.Hint

// Instruction pairs an instruction body with the hints that fire
// immediately before it executes.
type Instruction = hints.Instruction

// AllocSegment, TestLessThan, TestLessThanOrEqual, DivMod and
// SystemCall build the executable hint variants; AllocDictFeltTo,
// DictFeltToRead, DictFeltToWrite, EnterScope, ExitScope,
// DictSquashHints and RandomEcPoint build the reserved ones.
var (
	AllocSegment         = hints.AllocSegment
	TestLessThan         = hints.TestLessThan
	TestLessThanOrEqual  = hints.TestLessThanOrEqual
	DivMod               = hints.DivMod
	SystemCall           = hints.SystemCall
	AllocDictFeltTo      = hints.AllocDictFeltTo
	DictFeltToRead       = hints.DictFeltToRead
	DictFeltToWrite      = hints.DictFeltToWrite
	EnterScope           = hints.EnterScope
	ExitScope            = hints.ExitScope
	DictSquashHints      = hints.DictSquashHints
	RandomEcPoint        = hints.RandomEcPoint
)

// Prime is the fixed StarkNet field modulus: 2^251 + 17*2^192 + 1.
var Prime = core.Prime

// NewFieldElement builds a FieldElement in the StarkNet field from a
// big.Int, normalizing it into [0, Prime), for callers (such as a CLI
// or test harness) that hand-assemble instructions outside the vm and
// hints packages.
func NewFieldElement(v *big.Int) *FieldElement {
	return core.StarkNetField().NewElement(v)
}

// DeserializeHint parses a hint's canonical textual code, produced by
// SerializeHint, back into the hint IR.
func DeserializeHint(code string) (Hint, error) {
	return hints.Deserialize(code)
}

// SerializeHint renders a hint to its canonical textual code.
func SerializeHint(h Hint) string {
	return hints.Serialize(h)
}
