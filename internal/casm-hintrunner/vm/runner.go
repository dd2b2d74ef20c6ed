package vm

import (
	"fmt"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
)

// maxSteps bounds RunUntilPC against a program that never reaches its
// end pc, e.g. due to a hint or instruction bug.
const maxSteps = 10_000_000

// CairoRunner drives a VirtualMachine through a whole program: laying
// the instruction stream into the program segment, stepping until the
// program's end pc is reached (firing hints along the way), and
// relocating memory once the run is over.
type CairoRunner struct {
	VM *VirtualMachine
}

// NewCairoRunner creates a runner with a fresh VM.
func NewCairoRunner() *CairoRunner {
	return &CairoRunner{VM: NewVirtualMachine(0)}
}

// Initialize assembles every instruction body into the program segment
// and sets up the initial Ap/Fp/Pc, reserving the first two execution
// cells for the return fp and return pc a caller would have pushed.
// It returns the pc just past the last instruction, the sentinel
// RunUntilPC stops at.
func (r *CairoRunner) Initialize(program []InstructionBody) (Relocatable, error) {
	offset := uint64(0)
	for _, instr := range program {
		for _, word := range instr.Assemble().Encode() {
			addr := Relocatable{SegmentIndex: ProgramSegment, Offset: offset}
			if err := r.VM.InsertValue(addr, word); err != nil {
				return Relocatable{}, fmt.Errorf("writing program word at %s: %w", addr, err)
			}
			offset++
		}
	}
	endPC := Relocatable{SegmentIndex: ProgramSegment, Offset: offset}

	if err := r.VM.InsertRelocatable(Relocatable{SegmentIndex: ExecutionSegment, Offset: 0}, Relocatable{SegmentIndex: ExecutionSegment, Offset: 0}); err != nil {
		return Relocatable{}, err
	}
	if err := r.VM.InsertRelocatable(Relocatable{SegmentIndex: ExecutionSegment, Offset: 1}, endPC); err != nil {
		return Relocatable{}, err
	}

	r.VM.Context = Context{
		Pc: Relocatable{SegmentIndex: ProgramSegment, Offset: 0},
		Ap: 2,
		Fp: 2,
	}
	return endPC, nil
}

// decodeAt reads and decodes the instruction body at addr, consuming a
// second word for the immediate when the encoding calls for one.
func (r *CairoRunner) decodeAt(addr Relocatable) (InstructionBody, error) {
	wordFe, err := r.VM.Memory.GetFieldElement(addr)
	if err != nil {
		return InstructionBody{}, fmt.Errorf("reading instruction word at %s: %w", addr, err)
	}
	word := wordFe.Big().Uint64()

	body, err := DecodeInstructionBody(word, nil)
	if err == nil {
		return body, nil
	}

	immAddr := Relocatable{SegmentIndex: addr.SegmentIndex, Offset: addr.Offset + 1}
	immFe, ierr := r.VM.Memory.GetFieldElement(immAddr)
	if ierr != nil {
		return InstructionBody{}, fmt.Errorf("reading immediate word at %s: %w", immAddr, ierr)
	}
	return DecodeInstructionBody(word, immFe)
}

// RunUntilPC steps the VM until Pc reaches endPC, invoking hintRunner
// (if non-nil) at every pc before the instruction there executes.
func (r *CairoRunner) RunUntilPC(endPC Relocatable, hintRunner HintRunner) error {
	for steps := 0; r.VM.Context.Pc != endPC; steps++ {
		if steps >= maxSteps {
			return fmt.Errorf("exceeded %d steps without reaching end pc %s", maxSteps, endPC)
		}
		if hintRunner != nil {
			if err := hintRunner.ExecuteHints(r.VM, r.VM.Context.Pc.Offset); err != nil {
				return fmt.Errorf("hint at pc %s: %w", r.VM.Context.Pc, err)
			}
		}
		body, err := r.decodeAt(r.VM.Context.Pc)
		if err != nil {
			return err
		}
		if err := r.VM.RunInstruction(body); err != nil {
			return fmt.Errorf("step at pc %s: %w", r.VM.Context.Pc, err)
		}
	}
	return nil
}

// EndRun writes the trailing zero sentinel one cell past the final Ap.
// A segment only extends to its last written cell, so without the
// sentinel Relocate would drop unwritten cells at the end of the
// execution segment and the relocated index of the final Ap could lie
// past the end of the relocated memory.
func (r *CairoRunner) EndRun() error {
	addr := Relocatable{SegmentIndex: ExecutionSegment, Offset: r.VM.Context.Ap + 1}
	return r.VM.InsertValue(addr, core.StarkNetField().Zero())
}

// Relocate linearizes memory into its final, caller-facing form.
func (r *CairoRunner) Relocate() []*core.FieldElement {
	return r.VM.Memory.Relocate(core.Prime)
}
