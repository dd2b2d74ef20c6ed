package vm

import (
	"fmt"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
)

// Op1Src selects where the op1 operand's address comes from.
type Op1Src int

const (
	Op1SrcOp0 Op1Src = iota // op1 is read through the address held in op0
	Op1SrcImm
	Op1SrcFP
	Op1SrcAP
)

// ResLogic selects how the instruction's `res` auxiliary value is
// computed from op0 and op1.
type ResLogic int

const (
	ResUnconstrained ResLogic = iota
	ResOp1
	ResAdd
	ResMul
)

// PcUpdate selects how the program counter advances after the
// instruction executes.
type PcUpdate int

const (
	PcNextInstr PcUpdate = iota
	PcJump
	PcJumpRel
	PcJnz
)

// ApUpdate selects how the allocation pointer advances.
type ApUpdate int

const (
	ApRegular ApUpdate = iota
	ApAdd1
	ApAdd2
	ApAddRes
)

// Opcode is the instruction's control-flow/assertion discipline.
type Opcode int

const (
	OpNOp Opcode = iota
	OpAssertEq
	OpCall
	OpRet
)

// InstructionBody is a single CASM instruction, independent of any
// hints attached to it. Its encoded size is always known statically:
// one word, plus a second word carrying the immediate when the op1
// source is an immediate.
type InstructionBody struct {
	DstRegister Register
	OffDst      int16
	Op0Register Register
	OffOp0      int16
	Op1Src      Op1Src
	OffOp1      int16
	Res         ResLogic
	PcUpdate    PcUpdate
	ApUpdate    ApUpdate
	Opcode      Opcode
	Imm         *core.FieldElement // non-nil iff Op1Src == Op1SrcImm
}

// OpSize returns the number of memory cells this instruction occupies.
func (b InstructionBody) OpSize() int {
	if b.Op1Src == Op1SrcImm {
		return 2
	}
	return 1
}

const offsetBias = int32(1) << 15

func biasOffset(offset int16) uint64 {
	return uint64(int32(offset) + offsetBias)
}

func unbiasOffset(biased uint64) int16 {
	return int16(int32(biased) - offsetBias)
}

// flagsWord packs every discrete field of the instruction (besides the
// three signed offsets and the immediate) into a single 16-bit flags
// value, following the real CASM flag layout in spirit: each field
// occupies its own bit group so decode is a plain set of shifts/masks.
func (b InstructionBody) flagsWord() uint64 {
	var flags uint64
	if b.DstRegister == FP {
		flags |= 1 << 0
	}
	if b.Op0Register == FP {
		flags |= 1 << 1
	}
	flags |= uint64(b.Op1Src) << 2
	flags |= uint64(b.Res) << 4
	flags |= uint64(b.PcUpdate) << 6
	flags |= uint64(b.ApUpdate) << 8
	flags |= uint64(b.Opcode) << 10
	return flags
}

// Assemble encodes the instruction body into its memory-cell words.
func (b InstructionBody) Assemble() AssembledInstruction {
	word := biasOffset(b.OffDst) | (biasOffset(b.OffOp0) << 16) | (biasOffset(b.OffOp1) << 32) | (b.flagsWord() << 48)

	field := core.StarkNetField()
	words := []*core.FieldElement{field.NewElementFromUint64(word)}
	if b.Op1Src == Op1SrcImm {
		if b.Imm == nil {
			return AssembledInstruction{words: []*core.FieldElement{field.Zero(), field.Zero()}}
		}
		words = append(words, b.Imm)
	}
	return AssembledInstruction{words: words}
}

// AssembledInstruction is the encoded cell-sized word form of an
// instruction body, ready to be copied into program memory.
type AssembledInstruction struct {
	words []*core.FieldElement
}

// Encode returns the instruction's memory-cell words.
func (a AssembledInstruction) Encode() []*core.FieldElement {
	return a.words
}

// DecodeInstructionBody reverses Assemble, given the flags/offsets word
// and (when present) the following immediate word.
func DecodeInstructionBody(word uint64, imm *core.FieldElement) (InstructionBody, error) {
	offDst := unbiasOffset(word & 0xFFFF)
	offOp0 := unbiasOffset((word >> 16) & 0xFFFF)
	offOp1 := unbiasOffset((word >> 32) & 0xFFFF)
	flags := word >> 48

	dstReg := AP
	if flags&(1<<0) != 0 {
		dstReg = FP
	}
	op0Reg := AP
	if flags&(1<<1) != 0 {
		op0Reg = FP
	}
	op1Src := Op1Src((flags >> 2) & 0x3)
	res := ResLogic((flags >> 4) & 0x3)
	pcUpdate := PcUpdate((flags >> 6) & 0x3)
	apUpdate := ApUpdate((flags >> 8) & 0x3)
	opcode := Opcode((flags >> 10) & 0x3)

	body := InstructionBody{
		DstRegister: dstReg,
		OffDst:      offDst,
		Op0Register: op0Reg,
		OffOp0:      offOp0,
		Op1Src:      op1Src,
		OffOp1:      offOp1,
		Res:         res,
		PcUpdate:    pcUpdate,
		ApUpdate:    apUpdate,
		Opcode:      opcode,
	}
	if op1Src == Op1SrcImm {
		if imm == nil {
			return InstructionBody{}, fmt.Errorf("instruction requires an immediate word but none was supplied")
		}
		body.Imm = imm
	}
	return body, nil
}
