// Package hints implements the CASM hint IR, the processor that maps
// instruction offsets to hints and back to serialized code, and hint
// dispatch against a live VM (including the simulated StarkNet syscall
// interface).
package hints

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/vm"
)

// Kind tags which variant a Hint value carries.
type Kind int

const (
	KindAllocSegment Kind = iota
	KindTestLessThan
	KindTestLessThanOrEqual
	KindDivMod
	KindSystemCall
	// Reserved variants: parsed and serialized, never executed.
	KindAllocDictFeltTo
	KindDictFeltToRead
	KindDictFeltToWrite
	KindEnterScope
	KindExitScope
	KindDictSquashHints
	KindRandomEcPoint
)

func (k Kind) reserved() bool {
	return k >= KindAllocDictFeltTo
}

// Hint is a single instance of the hint IR. Only one group of fields is
// meaningful, selected by Kind; this mirrors the teacher's own
// tagged-struct style for small closed variant sets rather than an
// interface-per-variant hierarchy.
type Hint struct {
	Kind Kind

	// AllocSegment
	Dst vm.CellRef

	// TestLessThan / TestLessThanOrEqual / DivMod
	Lhs       vm.ResOperand
	Rhs       vm.ResOperand
	Quotient  vm.CellRef
	Remainder vm.CellRef

	// SystemCall
	System vm.ResOperand

	// EnterScope / ExitScope / reserved dict+EC hints carry no operands
	// we need to act on; they exist only so serialize/deserialize and
	// hints_at_offset bookkeeping have somewhere to put them.
}

// AllocSegment builds the segment-allocation hint.
func AllocSegment(dst vm.CellRef) Hint {
	return Hint{Kind: KindAllocSegment, Dst: dst}
}

// TestLessThan builds the `lhs < rhs` comparison hint.
func TestLessThan(lhs, rhs vm.ResOperand, dst vm.CellRef) Hint {
	return Hint{Kind: KindTestLessThan, Lhs: lhs, Rhs: rhs, Dst: dst}
}

// TestLessThanOrEqual builds the `lhs <= rhs` comparison hint.
func TestLessThanOrEqual(lhs, rhs vm.ResOperand, dst vm.CellRef) Hint {
	return Hint{Kind: KindTestLessThanOrEqual, Lhs: lhs, Rhs: rhs, Dst: dst}
}

// DivMod builds the truncated integer division+remainder hint.
func DivMod(lhs, rhs vm.ResOperand, quotient, remainder vm.CellRef) Hint {
	return Hint{Kind: KindDivMod, Lhs: lhs, Rhs: rhs, Quotient: quotient, Remainder: remainder}
}

// SystemCall builds the StarkNet syscall hint.
func SystemCall(system vm.ResOperand) Hint {
	return Hint{Kind: KindSystemCall, System: system}
}

// reservedHint builds one of the parse-only, never-executed variants.
func reservedHint(kind Kind) Hint {
	return Hint{Kind: kind}
}

func AllocDictFeltTo() Hint { return reservedHint(KindAllocDictFeltTo) }
func DictFeltToRead() Hint  { return reservedHint(KindDictFeltToRead) }
func DictFeltToWrite() Hint { return reservedHint(KindDictFeltToWrite) }
func EnterScope() Hint      { return reservedHint(KindEnterScope) }
func ExitScope() Hint       { return reservedHint(KindExitScope) }
func DictSquashHints() Hint { return reservedHint(KindDictSquashHints) }
func RandomEcPoint() Hint   { return reservedHint(KindRandomEcPoint) }

var reservedNames = map[Kind]string{
	KindAllocDictFeltTo: "AllocDictFeltTo",
	KindDictFeltToRead:  "DictFeltToRead",
	KindDictFeltToWrite: "DictFeltToWrite",
	KindEnterScope:      "EnterScope",
	KindExitScope:       "ExitScope",
	KindDictSquashHints: "DictSquashHints",
	KindRandomEcPoint:   "RandomEcPoint",
}

var namesToReservedKind = func() map[string]Kind {
	m := make(map[string]Kind, len(reservedNames))
	for k, v := range reservedNames {
		m[v] = k
	}
	return m
}()

// Serialize renders a Hint to its canonical textual code, the sole
// identity CairoHintProcessor uses to round-trip between the program's
// hints section and the in-memory IR.
func Serialize(h Hint) string {
	switch h.Kind {
	case KindAllocSegment:
		return fmt.Sprintf("AllocSegment(dst=%s)", h.Dst)
	case KindTestLessThan:
		return fmt.Sprintf("TestLessThan(lhs=%s, rhs=%s, dst=%s)", h.Lhs, h.Rhs, h.Dst)
	case KindTestLessThanOrEqual:
		return fmt.Sprintf("TestLessThanOrEqual(lhs=%s, rhs=%s, dst=%s)", h.Lhs, h.Rhs, h.Dst)
	case KindDivMod:
		return fmt.Sprintf("DivMod(lhs=%s, rhs=%s, quotient=%s, remainder=%s)", h.Lhs, h.Rhs, h.Quotient, h.Remainder)
	case KindSystemCall:
		return fmt.Sprintf("SystemCall(system=%s)", h.System)
	default:
		if name, ok := reservedNames[h.Kind]; ok {
			return fmt.Sprintf("%s()", name)
		}
		return fmt.Sprintf("UnknownHint(kind=%d)", h.Kind)
	}
}

// Deserialize parses a string produced by Serialize back into a Hint.
// It is a simple hand-rolled reader over the fixed grammar Serialize
// emits; there is no general expression language to parse since every
// field inside the parens is itself produced by the operand types'
// own String methods.
func Deserialize(code string) (Hint, error) {
	name, body, ok := splitCall(code)
	if !ok {
		return Hint{}, fmt.Errorf("malformed hint code: %q", code)
	}

	if kind, ok := namesToReservedKind[name]; ok {
		return reservedHint(kind), nil
	}

	switch name {
	case "AllocSegment":
		args := parseArgs(body)
		cell, err := parseCellRef(args["dst"])
		if err != nil {
			return Hint{}, err
		}
		return AllocSegment(cell), nil
	case "TestLessThan", "TestLessThanOrEqual":
		args := parseArgs(body)
		lhs, err := parseResOperand(args["lhs"])
		if err != nil {
			return Hint{}, err
		}
		rhs, err := parseResOperand(args["rhs"])
		if err != nil {
			return Hint{}, err
		}
		dst, err := parseCellRef(args["dst"])
		if err != nil {
			return Hint{}, err
		}
		if name == "TestLessThan" {
			return TestLessThan(lhs, rhs, dst), nil
		}
		return TestLessThanOrEqual(lhs, rhs, dst), nil
	case "DivMod":
		args := parseArgs(body)
		lhs, err := parseResOperand(args["lhs"])
		if err != nil {
			return Hint{}, err
		}
		rhs, err := parseResOperand(args["rhs"])
		if err != nil {
			return Hint{}, err
		}
		quotient, err := parseCellRef(args["quotient"])
		if err != nil {
			return Hint{}, err
		}
		remainder, err := parseCellRef(args["remainder"])
		if err != nil {
			return Hint{}, err
		}
		return DivMod(lhs, rhs, quotient, remainder), nil
	case "SystemCall":
		args := parseArgs(body)
		system, err := parseResOperand(args["system"])
		if err != nil {
			return Hint{}, err
		}
		return SystemCall(system), nil
	default:
		return Hint{}, fmt.Errorf("unknown hint code: %q", code)
	}
}

func splitCall(code string) (name, body string, ok bool) {
	open := strings.IndexByte(code, '(')
	if open < 0 || !strings.HasSuffix(code, ")") {
		return "", "", false
	}
	return code[:open], code[open+1 : len(code)-1], true
}

// parseArgs splits a "k=v, k=v" argument body on top-level commas
// (commas inside nested parens/brackets don't split).
func parseArgs(body string) map[string]string {
	out := make(map[string]string)
	depth := 0
	start := 0
	flush := func(end int) {
		part := strings.TrimSpace(body[start:end])
		if part == "" {
			return
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return
		}
		out[strings.TrimSpace(part[:eq])] = strings.TrimSpace(part[eq+1:])
	}
	for i, r := range body {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(body))
	return out
}

// parseCellRef parses the CellRef.String() form: "[ap + 3]"/"[fp - 1]".
func parseCellRef(s string) (vm.CellRef, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return vm.CellRef{}, fmt.Errorf("malformed cell reference: %q", s)
	}
	var reg vm.Register
	switch fields[0] {
	case "ap":
		reg = vm.AP
	case "fp":
		reg = vm.FP
	default:
		return vm.CellRef{}, fmt.Errorf("unknown register: %q", fields[0])
	}
	var n int
	if _, err := fmt.Sscanf(fields[2], "%d", &n); err != nil {
		return vm.CellRef{}, fmt.Errorf("malformed offset in %q: %w", s, err)
	}
	if fields[1] == "-" {
		n = -n
	}
	return vm.CellRef{Register: reg, Offset: int16(n)}, nil
}

// parseResOperand parses the ResOperand.String() forms produced by the
// vm package: a plain CellRef, a double-deref "[[ap + 0] + 2]", a
// decimal immediate, or a binary op "[ap + 0] + 5".
func parseResOperand(s string) (vm.ResOperand, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[[") {
		inner := strings.TrimPrefix(s, "[")
		inner = strings.TrimSuffix(inner, "]")
		closeIdx := strings.IndexByte(inner, ']')
		if closeIdx < 0 {
			return vm.ResOperand{}, fmt.Errorf("malformed double deref: %q", s)
		}
		cell, err := parseCellRef(inner[:closeIdx+1])
		if err != nil {
			return vm.ResOperand{}, err
		}
		rest := strings.TrimSpace(inner[closeIdx+1:])
		rest = strings.TrimPrefix(rest, "+")
		var off int
		if _, err := fmt.Sscanf(strings.TrimSpace(rest), "%d", &off); err != nil {
			return vm.ResOperand{}, fmt.Errorf("malformed double deref offset: %q", s)
		}
		return vm.NewDoubleDerefResOperand(cell, int16(off)), nil
	}

	if strings.HasPrefix(s, "[") {
		if opIdx, op, rhs, ok := findTopLevelBinOp(s); ok {
			cell, err := parseCellRef(s[:opIdx])
			if err != nil {
				return vm.ResOperand{}, err
			}
			b, err := parseDerefOrImmediate(rhs)
			if err != nil {
				return vm.ResOperand{}, err
			}
			return vm.NewBinOpResOperand(op, cell, b), nil
		}
		cell, err := parseCellRef(s)
		if err != nil {
			return vm.ResOperand{}, err
		}
		return vm.NewDerefResOperand(cell), nil
	}

	fe, err := parseFieldElement(s)
	if err != nil {
		return vm.ResOperand{}, err
	}
	return vm.NewImmediateResOperand(fe), nil
}

func findTopLevelBinOp(s string) (idx int, op vm.Operation, rhs string, ok bool) {
	depth := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case '+', '*':
			if depth == 0 && i > 0 {
				opVal := vm.Add
				if r == '*' {
					opVal = vm.Mul
				}
				return i, opVal, s[i+1:], true
			}
		}
	}
	return 0, 0, "", false
}

func parseDerefOrImmediate(s string) (vm.DerefOrImmediate, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		cell, err := parseCellRef(s)
		if err != nil {
			return vm.DerefOrImmediate{}, err
		}
		return vm.NewDerefOperand(cell), nil
	}
	fe, err := parseFieldElement(s)
	if err != nil {
		return vm.DerefOrImmediate{}, err
	}
	return vm.NewImmediateOperand(fe), nil
}

func parseFieldElement(s string) (*core.FieldElement, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed field element literal: %q", s)
	}
	return core.StarkNetField().NewElement(n), nil
}
