package hints

import "github.com/vybium/casm-hintrunner/internal/casm-hintrunner/vm"

// Instruction pairs an instruction body with the ordered hints that
// fire immediately before it executes.
type Instruction struct {
	Body  vm.InstructionBody
	Hints []Hint
}

// OpSize delegates to the body: a hint never changes an instruction's
// encoded size.
func (i Instruction) OpSize() int {
	return i.Body.OpSize()
}

// HintParams is the serialized hint descriptor recorded in a program's
// hints section: the textual code (the VM's compile_hint lookup key),
// plus the accessible-scopes and flow-tracking fields the spec leaves
// permanently empty for this processor.
type HintParams struct {
	Code            string
	AccessibleScopes []string
	FlowTrackingData struct{}
}
