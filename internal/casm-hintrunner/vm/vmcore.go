package vm

import (
	"fmt"
	"math/big"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
)

// Segment indices allocated by NewVirtualMachine. Program data lives in
// segment 0, the execution stack (where Ap/Fp point) in segment 1;
// every further segment (builtins, AllocSegment hints) is appended
// after these two.
const (
	ProgramSegment   = 0
	ExecutionSegment = 1
)

// Context holds the three CASM registers. Pc is a full relocatable
// address (it can point into the program segment); Ap and Fp are plain
// offsets into ExecutionSegment.
type Context struct {
	Pc Relocatable
	Ap uint64
	Fp uint64
}

// VirtualMachine is the CASM register machine: registers, segmented
// memory and an append-only trace of every context visited.
type VirtualMachine struct {
	Context Context
	Memory  *Memory
	Trace   []Context
}

// NewVirtualMachine creates a VM with the program and execution
// segments pre-allocated, Pc at the start of the program segment and
// Ap/Fp both set to the caller-supplied initial stack size.
func NewVirtualMachine(initialApFp uint64) *VirtualMachine {
	mem := NewMemory()
	mem.AddSegment() // ProgramSegment
	mem.AddSegment() // ExecutionSegment
	return &VirtualMachine{
		Context: Context{
			Pc: Relocatable{SegmentIndex: ProgramSegment, Offset: 0},
			Ap: initialApFp,
			Fp: initialApFp,
		},
		Memory: mem,
	}
}

// HintRunner is the interface the runner drives to fire every hint
// registered at a given program-counter offset, before the instruction
// at that offset executes. Implementations that have nothing
// registered at pcOffset must return nil without touching vm.
type HintRunner interface {
	ExecuteHints(vm *VirtualMachine, pcOffset uint64) error
}

// InsertValue writes a field element at a cell address.
func (m *VirtualMachine) InsertValue(addr Relocatable, fe *core.FieldElement) error {
	return m.Memory.Insert(addr, FromFieldElement(fe))
}

// InsertRelocatable writes an address value at a cell address.
func (m *VirtualMachine) InsertRelocatable(addr Relocatable, rel Relocatable) error {
	return m.Memory.Insert(addr, FromRelocatable(rel))
}

func getDstAddr(vm *VirtualMachine, b InstructionBody) Relocatable {
	return CellToAddr(vm, CellRef{Register: b.DstRegister, Offset: b.OffDst})
}

func getOp0Addr(vm *VirtualMachine, b InstructionBody) Relocatable {
	return CellToAddr(vm, CellRef{Register: b.Op0Register, Offset: b.OffOp0})
}

func getOp1Addr(vm *VirtualMachine, b InstructionBody, op0 *MaybeRelocatable) (Relocatable, error) {
	switch b.Op1Src {
	case Op1SrcAP:
		return Relocatable{SegmentIndex: ExecutionSegment, Offset: addSignedOffset(vm.Context.Ap, b.OffOp1)}, nil
	case Op1SrcFP:
		return Relocatable{SegmentIndex: ExecutionSegment, Offset: addSignedOffset(vm.Context.Fp, b.OffOp1)}, nil
	case Op1SrcImm:
		return Relocatable{SegmentIndex: vm.Context.Pc.SegmentIndex, Offset: addSignedOffset(vm.Context.Pc.Offset, b.OffOp1)}, nil
	case Op1SrcOp0:
		if op0 == nil {
			return Relocatable{}, fmt.Errorf("op1 addressed through op0 but op0 is unknown")
		}
		base, err := op0.Relocatable()
		if err != nil {
			return Relocatable{}, fmt.Errorf("op1 addressed through op0, but op0 is not a relocatable: %w", err)
		}
		return Relocatable{SegmentIndex: base.SegmentIndex, Offset: addSignedOffset(base.Offset, b.OffOp1)}, nil
	default:
		return Relocatable{}, fmt.Errorf("unknown op1 source %d", b.Op1Src)
	}
}

// stepOutcome carries the values a single step resolves, needed by the
// pc/ap/fp update logic after the opcode's assertions run.
type stepOutcome struct {
	dstAddr Relocatable
	op0Addr Relocatable
	op1Addr Relocatable
	dst     *MaybeRelocatable
	op0     *MaybeRelocatable
	op1     *MaybeRelocatable
	res     *MaybeRelocatable
}

// RunInstruction executes a single decoded instruction body against the
// VM's current state: it resolves dst/op0/op1, infers whichever of
// them assert-eq inference permits leaving unconstrained, computes res,
// applies the opcode's assertions, and finally advances Pc/Ap/Fp.
func (vm *VirtualMachine) RunInstruction(b InstructionBody) error {
	outcome := stepOutcome{}
	outcome.dstAddr = getDstAddr(vm, b)
	outcome.op0Addr = getOp0Addr(vm, b)

	outcome.dst, _ = vm.Memory.Get(outcome.dstAddr)
	outcome.op0, _ = vm.Memory.Get(outcome.op0Addr)

	op1Addr, err := getOp1Addr(vm, b, outcome.op0)
	if err != nil {
		if outcome.op0 != nil || b.Opcode == OpAssertEq {
			return err
		}
		// op0 unknown and op1 addressed through it: op1 stays unresolved.
		// Assert-eq cannot infer op0 here and fails above; other opcodes
		// proceed and fail later only if they need op1.
		op1Addr = Relocatable{}
	} else {
		outcome.op1Addr = op1Addr
		outcome.op1, _ = vm.Memory.Get(op1Addr)
	}

	if err := vm.inferOperands(b, &outcome); err != nil {
		return err
	}

	if err := vm.computeRes(b, &outcome); err != nil {
		return err
	}

	if err := vm.applyOpcodeAssertions(b, &outcome); err != nil {
		return err
	}

	nextAp, err := vm.nextAp(b, &outcome)
	if err != nil {
		return err
	}
	nextFp := vm.nextFp(b, &outcome)
	nextPc, err := vm.nextPc(b, &outcome)
	if err != nil {
		return err
	}

	vm.Trace = append(vm.Trace, vm.Context)
	vm.Context.Ap = nextAp
	vm.Context.Fp = nextFp
	vm.Context.Pc = nextPc
	return nil
}

// inferOperands fills in op0/op1 when the opcode's assert-eq semantics
// make them computable in reverse from a known dst (e.g. dst known and
// op0 missing implies op0 = dst - op1 for Add).
func (vm *VirtualMachine) inferOperands(b InstructionBody, o *stepOutcome) error {
	if b.Opcode != OpAssertEq || o.dst == nil {
		return nil
	}
	if o.op0 != nil && (o.op1 != nil || b.Res == ResUnconstrained) {
		return nil
	}

	dstFe, err := o.dst.FieldElement()
	if err != nil {
		return fmt.Errorf("assert-eq inference requires a field-element dst: %w", err)
	}

	switch b.Res {
	case ResOp1:
		if o.op1 == nil {
			if err := vm.Memory.Insert(o.op1Addr, *o.dst); err != nil {
				return err
			}
			o.op1 = o.dst
		}
	case ResAdd:
		if o.op0 == nil && o.op1 != nil {
			op1Fe, err := o.op1.FieldElement()
			if err != nil {
				return fmt.Errorf("assert-eq inference requires a field-element op1: %w", err)
			}
			inferred := FromFieldElement(dstFe.Sub(op1Fe))
			if err := vm.Memory.Insert(o.op0Addr, inferred); err != nil {
				return err
			}
			o.op0 = &inferred
		} else if o.op1 == nil && o.op0 != nil {
			op0Fe, err := o.op0.FieldElement()
			if err != nil {
				return fmt.Errorf("assert-eq inference requires a field-element op0: %w", err)
			}
			inferred := FromFieldElement(dstFe.Sub(op0Fe))
			if err := vm.Memory.Insert(o.op1Addr, inferred); err != nil {
				return err
			}
			o.op1 = &inferred
		}
	case ResMul:
		if o.op0 == nil && o.op1 != nil {
			op1Fe, err := o.op1.FieldElement()
			if err != nil || op1Fe.IsZero() {
				return fmt.Errorf("cannot infer op0: divisor is zero or op1 is not a field element")
			}
			inferred := FromFieldElement(divExact(dstFe, op1Fe))
			if err := vm.Memory.Insert(o.op0Addr, inferred); err != nil {
				return err
			}
			o.op0 = &inferred
		} else if o.op1 == nil && o.op0 != nil {
			op0Fe, err := o.op0.FieldElement()
			if err != nil || op0Fe.IsZero() {
				return fmt.Errorf("cannot infer op1: divisor is zero or op0 is not a field element")
			}
			inferred := FromFieldElement(divExact(dstFe, op0Fe))
			if err := vm.Memory.Insert(o.op1Addr, inferred); err != nil {
				return err
			}
			o.op1 = &inferred
		}
	}
	return nil
}

// divExact computes a * b^-1 in the field, used only by assert-eq's
// reverse inference for ResMul (never by hint operand resolution,
// which must stay unreduced per §4.1).
func divExact(a, b *core.FieldElement) *core.FieldElement {
	field := core.StarkNetField()
	inv := new(big.Int).ModInverse(b.Big(), core.Prime)
	return field.NewElement(new(big.Int).Mul(a.Big(), inv))
}

func (vm *VirtualMachine) computeRes(b InstructionBody, o *stepOutcome) error {
	switch b.Res {
	case ResUnconstrained:
		return nil
	case ResOp1:
		o.res = o.op1
		return nil
	case ResAdd, ResMul:
		if o.op0 == nil || o.op1 == nil {
			return fmt.Errorf("cannot compute res: op0 or op1 undetermined")
		}
		op0Fe, err := o.op0.FieldElement()
		if err != nil {
			return fmt.Errorf("res requires field-element operands: %w", err)
		}
		op1Fe, err := o.op1.FieldElement()
		if err != nil {
			return fmt.Errorf("res requires field-element operands: %w", err)
		}
		var result *core.FieldElement
		if b.Res == ResAdd {
			result = op0Fe.Add(op1Fe)
		} else {
			result = op0Fe.Mul(op1Fe)
		}
		resCell := FromFieldElement(result)
		o.res = &resCell
		return nil
	default:
		return fmt.Errorf("unknown res logic %d", b.Res)
	}
}

func (vm *VirtualMachine) applyOpcodeAssertions(b InstructionBody, o *stepOutcome) error {
	switch b.Opcode {
	case OpNOp:
		return nil
	case OpAssertEq:
		if o.res == nil {
			return fmt.Errorf("assert-eq requires a computed res")
		}
		if o.dst == nil {
			if err := vm.Memory.Insert(o.dstAddr, *o.res); err != nil {
				return err
			}
			o.dst = o.res
			return nil
		}
		if !maybeRelocatableEqual(*o.dst, *o.res) {
			return fmt.Errorf("assert-eq failed: dst=%v res=%v", o.dst, o.res)
		}
		return nil
	case OpCall:
		callerFp := FromRelocatable(Relocatable{SegmentIndex: ExecutionSegment, Offset: vm.Context.Fp})
		if err := vm.Memory.Insert(o.op0Addr, callerFp); err != nil {
			return err
		}
		nextInstr := vm.Context.Pc.Offset + uint64(b.OpSize())
		returnPc := FromRelocatable(Relocatable{SegmentIndex: vm.Context.Pc.SegmentIndex, Offset: nextInstr})
		if err := vm.Memory.Insert(o.dstAddr, returnPc); err != nil {
			return err
		}
		return nil
	case OpRet:
		return nil
	default:
		return fmt.Errorf("unknown opcode %d", b.Opcode)
	}
}

func (vm *VirtualMachine) nextAp(b InstructionBody, o *stepOutcome) (uint64, error) {
	switch b.ApUpdate {
	case ApRegular:
		if b.Opcode == OpCall {
			return vm.Context.Ap + 2, nil
		}
		return vm.Context.Ap, nil
	case ApAdd1:
		return vm.Context.Ap + 1, nil
	case ApAdd2:
		return vm.Context.Ap + 2, nil
	case ApAddRes:
		if o.res == nil {
			return 0, fmt.Errorf("ap += res requires a computed res")
		}
		resFe, err := o.res.FieldElement()
		if err != nil {
			return 0, fmt.Errorf("ap += res requires a field-element res: %w", err)
		}
		if !resFe.Big().IsUint64() {
			return 0, fmt.Errorf("ap += res overflow")
		}
		return vm.Context.Ap + resFe.Big().Uint64(), nil
	default:
		return 0, fmt.Errorf("unknown ap update %d", b.ApUpdate)
	}
}

func (vm *VirtualMachine) nextFp(b InstructionBody, o *stepOutcome) uint64 {
	switch b.Opcode {
	case OpCall:
		return vm.Context.Ap + 2
	case OpRet:
		if o.dst != nil {
			if rel, err := o.dst.Relocatable(); err == nil {
				return rel.Offset
			}
		}
		return vm.Context.Fp
	default:
		return vm.Context.Fp
	}
}

func (vm *VirtualMachine) nextPc(b InstructionBody, o *stepOutcome) (Relocatable, error) {
	pc := vm.Context.Pc
	switch b.PcUpdate {
	case PcNextInstr:
		return Relocatable{SegmentIndex: pc.SegmentIndex, Offset: pc.Offset + uint64(b.OpSize())}, nil
	case PcJump:
		if o.res == nil {
			return Relocatable{}, fmt.Errorf("jump requires a computed res")
		}
		return o.res.Relocatable()
	case PcJumpRel:
		if o.res == nil {
			return Relocatable{}, fmt.Errorf("jump rel requires a computed res")
		}
		resFe, err := o.res.FieldElement()
		if err != nil {
			return Relocatable{}, fmt.Errorf("jump rel requires a field-element res: %w", err)
		}
		return pc.AddMod(resFe.Big(), core.Prime)
	case PcJnz:
		if o.dst == nil {
			return Relocatable{}, fmt.Errorf("jnz requires a resolved dst")
		}
		dstFe, err := o.dst.FieldElement()
		if err != nil {
			return Relocatable{}, fmt.Errorf("jnz requires a field-element dst: %w", err)
		}
		if dstFe.IsZero() {
			return Relocatable{SegmentIndex: pc.SegmentIndex, Offset: pc.Offset + uint64(b.OpSize())}, nil
		}
		if o.op1 == nil {
			return Relocatable{}, fmt.Errorf("jnz requires a resolved op1")
		}
		op1Fe, err := o.op1.FieldElement()
		if err != nil {
			return Relocatable{}, fmt.Errorf("jnz requires a field-element op1: %w", err)
		}
		return pc.AddMod(op1Fe.Big(), core.Prime)
	default:
		return Relocatable{}, fmt.Errorf("unknown pc update %d", b.PcUpdate)
	}
}
