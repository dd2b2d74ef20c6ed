package casmhintrunner

import (
	"fmt"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/hints"
	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/vm"
)

// Run assembles instructions into a program image, drives the VM to
// completion with a hint processor built from the same stream bound,
// and returns the relocated memory and final allocation pointer.
//
// builtins is carried through for API parity with the compiler's
// program image (§3 of the CASM data model) but is otherwise opaque
// here: builtin cells (range-check, hash, ...) are validated by the
// compiler's code generator, out of scope for this package.
func Run(instructions []Instruction, builtins []string) ([]*FieldElement, int, error) {
	bodies := make([]InstructionBody, len(instructions))
	for i, instr := range instructions {
		bodies[i] = instr.Body
	}

	processor := hints.NewCairoHintProcessor(instructions)
	runner := vm.NewCairoRunner()

	endPC, err := runner.Initialize(bodies)
	if err != nil {
		return nil, 0, wrapRunError(err)
	}
	if err := runner.RunUntilPC(endPC, processor); err != nil {
		return nil, 0, wrapRunError(err)
	}
	// Trailing sentinel: compensates for the VM truncating unset
	// trailing cells at a segment's end, which would otherwise corrupt
	// return-value extraction for a run whose last cells are unwritten.
	if err := runner.EndRun(); err != nil {
		return nil, 0, wrapRunError(err)
	}

	apAddr := vm.Relocatable{SegmentIndex: vm.ExecutionSegment, Offset: runner.VM.Context.Ap}
	relocatedAp, err := runner.VM.Memory.RelocatedIndex(apAddr)
	if err != nil {
		return nil, 0, wrapRunError(err)
	}

	return runner.Relocate(), relocatedAp, nil
}

// RunAndTake runs instructions and returns the last n relocated memory
// cells ending at the final allocation pointer, per §4.6: each
// requested cell must be present, or the call fails with ErrExtraction.
func RunAndTake(instructions []Instruction, builtins []string, n int) ([]*FieldElement, error) {
	memory, ap, err := Run(instructions, builtins)
	if err != nil {
		return nil, err
	}

	if n < 0 || ap-n < 0 || ap > len(memory) {
		return nil, &CasmError{Code: ErrExtraction, Message: fmt.Sprintf("cannot extract %d return values from %d cells ending at ap %d", n, len(memory), ap)}
	}

	values := make([]*FieldElement, n)
	for i := 0; i < n; i++ {
		cell := memory[ap-n+i]
		if cell == nil {
			return nil, &CasmError{Code: ErrExtraction, Message: fmt.Sprintf("return cell at offset %d is empty", ap-n+i)}
		}
		values[i] = cell
	}
	return values, nil
}
