package hints

import (
	"fmt"
	"math/big"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/vm"
)

// CairoHintProcessor maintains the two mappings a CASM program needs
// to fire hints during a run, and owns the run's execution scopes. It
// implements vm.HintRunner, so a *CairoRunner can drive it directly
// without the vm package ever importing this one.
type CairoHintProcessor struct {
	hintsAtOffset map[uint64][]HintParams
	offsetToHints map[uint64][]Hint
	codeToHint    map[string]Hint
	Scopes        *ExecutionScopes
}

// NewCairoHintProcessor scans an instruction stream once, building
// hints_at_offset and code_to_hint while tracking the cumulative
// op_size prefix sum, per §4.2.
func NewCairoHintProcessor(instructions []Instruction) *CairoHintProcessor {
	p := &CairoHintProcessor{
		hintsAtOffset: make(map[uint64][]HintParams),
		offsetToHints: make(map[uint64][]Hint),
		codeToHint:    make(map[string]Hint),
		Scopes:        NewExecutionScopes(),
	}

	offset := uint64(0)
	for _, instr := range instructions {
		if len(instr.Hints) > 0 {
			params := make([]HintParams, len(instr.Hints))
			for i, h := range instr.Hints {
				code := Serialize(h)
				params[i] = HintParams{Code: code}
				p.codeToHint[code] = h
			}
			p.hintsAtOffset[offset] = params
			p.offsetToHints[offset] = instr.Hints
		}
		offset += uint64(instr.OpSize())
	}
	return p
}

// HintsAtOffset returns the serialized hint descriptors registered at
// a program offset, mirroring the program's own hints section.
func (p *CairoHintProcessor) HintsAtOffset(offset uint64) []HintParams {
	return p.hintsAtOffset[offset]
}

// CompileHint resolves a serialized code back to its Hint IR value,
// the processor's compile_hint bridge for the VM.
func (p *CairoHintProcessor) CompileHint(code string) (Hint, error) {
	h, ok := p.codeToHint[code]
	if !ok {
		return Hint{}, fmt.Errorf("no hint registered for code %q", code)
	}
	return h, nil
}

// ExecuteHints implements vm.HintRunner: it runs every hint registered
// at pcOffset, in their registered order, before the instruction there
// executes.
func (p *CairoHintProcessor) ExecuteHints(machine *vm.VirtualMachine, pcOffset uint64) error {
	for _, h := range p.offsetToHints[pcOffset] {
		if err := p.Execute(machine, h); err != nil {
			return err
		}
	}
	return nil
}

// Execute dispatches a single hint against the live VM, per §4.3.
func (p *CairoHintProcessor) Execute(machine *vm.VirtualMachine, h Hint) error {
	switch h.Kind {
	case KindAllocSegment:
		seg := machine.Memory.AddSegment()
		return machine.InsertRelocatable(vm.CellToAddr(machine, h.Dst), seg)

	case KindTestLessThan:
		return p.executeComparison(machine, h, func(c int) bool { return c < 0 })

	case KindTestLessThanOrEqual:
		return p.executeComparison(machine, h, func(c int) bool { return c <= 0 })

	case KindDivMod:
		return p.executeDivMod(machine, h)

	case KindSystemCall:
		return p.executeSystemCall(machine, h)

	default:
		if name, ok := reservedNames[h.Kind]; ok {
			return &NotImplementedError{Msg: fmt.Sprintf("hint %s is reserved and not executed", name)}
		}
		return &NotImplementedError{Msg: fmt.Sprintf("unknown hint kind %d", h.Kind)}
	}
}

func (p *CairoHintProcessor) executeComparison(machine *vm.VirtualMachine, h Hint, pred func(cmp int) bool) error {
	lhs, err := vm.ResolveValue(machine, h.Lhs)
	if err != nil {
		return err
	}
	rhs, err := vm.ResolveValue(machine, h.Rhs)
	if err != nil {
		return err
	}

	field := core.StarkNetField()
	result := field.Zero()
	if pred(lhs.Cmp(rhs)) {
		result = field.One()
	}
	return machine.InsertValue(vm.CellToAddr(machine, h.Dst), result)
}

func (p *CairoHintProcessor) executeDivMod(machine *vm.VirtualMachine, h Hint) error {
	lhs, err := vm.ResolveValue(machine, h.Lhs)
	if err != nil {
		return err
	}
	rhs, err := vm.ResolveValue(machine, h.Rhs)
	if err != nil {
		return err
	}
	if rhs.Sign() == 0 {
		return &ArithmeticError{Msg: "DivMod: division by zero"}
	}

	// big.Int.QuoRem truncates toward zero, matching the chosen
	// rounding mode for mixed-sign operands.
	quotient, remainder := new(big.Int).QuoRem(lhs, rhs, new(big.Int))

	field := core.StarkNetField()
	if err := machine.InsertValue(vm.CellToAddr(machine, h.Quotient), field.NewElement(quotient)); err != nil {
		return err
	}
	return machine.InsertValue(vm.CellToAddr(machine, h.Remainder), field.NewElement(remainder))
}
