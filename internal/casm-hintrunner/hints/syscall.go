package hints

import (
	"fmt"
	"math/big"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/vm"
)

const (
	storageWriteGasCost = 1000
	storageReadGasCost  = 100
)

// decomposeSystemPointer interprets a SystemCall's `system` ResOperand
// as a pointer to a syscall frame. Only Deref(cell) (base offset 0) and
// BinOp{Add, cell, Immediate(k)} (base offset k) are accepted; this is
// a closed set established by the emitter, per the "operand shape
// asymmetry" design note, so anything else is a fatal ProtocolError.
func decomposeSystemPointer(system vm.ResOperand) (vm.CellRef, int64, error) {
	switch system.Kind() {
	case vm.ResKindDeref:
		return system.Cell(), 0, nil
	case vm.ResKindBinOp:
		if system.BinOpOperation() != vm.Add {
			return vm.CellRef{}, 0, &ProtocolError{Msg: "system pointer BinOp must be Add"}
		}
		rhs := system.BinOpRhs()
		if !rhs.IsImmediate() {
			return vm.CellRef{}, 0, &ProtocolError{Msg: "system pointer BinOp right-hand side must be an immediate"}
		}
		k := rhs.ImmediateValue().Big()
		if !k.IsInt64() {
			return vm.CellRef{}, 0, &ProtocolError{Msg: "system pointer base offset out of range"}
		}
		return system.Cell(), k.Int64(), nil
	default:
		return vm.CellRef{}, 0, &ProtocolError{Msg: "unsupported system pointer shape"}
	}
}

// frameCell resolves the absolute address of syscall frame offset n
// relative to the decomposed (cell, base) pointer: *cell + base + n.
func frameCell(machine *vm.VirtualMachine, cell vm.CellRef, base int64, n int64) (vm.Relocatable, error) {
	return vm.GetPtr(machine, cell, big.NewInt(base+n))
}

func readFrameInt(machine *vm.VirtualMachine, cell vm.CellRef, base, n int64) (*big.Int, error) {
	addr, err := frameCell(machine, cell, base, n)
	if err != nil {
		return nil, err
	}
	fe, err := machine.Memory.GetFieldElement(addr)
	if err != nil {
		return nil, err
	}
	return fe.Big(), nil
}

func writeFrameInt(machine *vm.VirtualMachine, cell vm.CellRef, base, n int64, value *big.Int) error {
	addr, err := frameCell(machine, cell, base, n)
	if err != nil {
		return err
	}
	return machine.InsertValue(addr, core.StarkNetField().NewElement(value))
}

// selectorFromFieldElement decodes a field element holding an
// ASCII-encoded selector string (big-endian bytes, sign-stripped).
func selectorFromFieldElement(fe *core.FieldElement) (string, error) {
	v := fe.Big()
	if v.Sign() < 0 {
		return "", &ProtocolError{Msg: "syscall selector must be non-negative"}
	}
	return string(v.Bytes()), nil
}

func (p *CairoHintProcessor) executeSystemCall(machine *vm.VirtualMachine, h Hint) error {
	cell, base, err := decomposeSystemPointer(h.System)
	if err != nil {
		return err
	}

	selectorAddr, err := frameCell(machine, cell, base, 0)
	if err != nil {
		return err
	}
	selectorFe, err := machine.Memory.GetFieldElement(selectorAddr)
	if err != nil {
		return err
	}
	selector, err := selectorFromFieldElement(selectorFe)
	if err != nil {
		return err
	}

	scope := p.Scopes.starknet()

	switch selector {
	case "StorageWrite":
		return p.executeStorageWrite(machine, cell, base, scope)
	case "StorageRead":
		return p.executeStorageRead(machine, cell, base, scope)
	case "call_contract":
		return &NotImplementedError{Msg: "call_contract syscall is reserved and not executed"}
	default:
		return &ProtocolError{Msg: fmt.Sprintf("unknown syscall selector %q", selector)}
	}
}

func (p *CairoHintProcessor) executeStorageWrite(machine *vm.VirtualMachine, cell vm.CellRef, base int64, scope *StarknetExecScope) error {
	gasCounter, err := readFrameInt(machine, cell, base, 1)
	if err != nil {
		return err
	}
	addrDomain, err := readFrameInt(machine, cell, base, 2)
	if err != nil {
		return err
	}
	addr, err := readFrameInt(machine, cell, base, 3)
	if err != nil {
		return err
	}
	value, err := readFrameInt(machine, cell, base, 4)
	if err != nil {
		return err
	}

	cost := big.NewInt(storageWriteGasCost)
	if addrDomain.Sign() == 0 && gasCounter.Cmp(cost) >= 0 {
		scope.Storage[addr.String()] = core.StarkNetField().NewElement(value)
		updated := new(big.Int).Sub(gasCounter, cost)
		if err := writeFrameInt(machine, cell, base, 5, updated); err != nil {
			return err
		}
		return writeFrameInt(machine, cell, base, 6, big.NewInt(0))
	}

	if err := writeFrameInt(machine, cell, base, 5, gasCounter); err != nil {
		return err
	}
	return writeFrameInt(machine, cell, base, 6, big.NewInt(1))
}

func (p *CairoHintProcessor) executeStorageRead(machine *vm.VirtualMachine, cell vm.CellRef, base int64, scope *StarknetExecScope) error {
	gasCounter, err := readFrameInt(machine, cell, base, 1)
	if err != nil {
		return err
	}
	addrDomain, err := readFrameInt(machine, cell, base, 2)
	if err != nil {
		return err
	}
	addr, err := readFrameInt(machine, cell, base, 3)
	if err != nil {
		return err
	}

	cost := big.NewInt(storageReadGasCost)
	if addrDomain.Sign() == 0 && gasCounter.Cmp(cost) >= 0 {
		value, ok := scope.Storage[addr.String()]
		if !ok {
			value = core.StarkNetField().Zero()
		}
		updated := new(big.Int).Sub(gasCounter, cost)
		if err := writeFrameInt(machine, cell, base, 4, updated); err != nil {
			return err
		}
		if err := writeFrameInt(machine, cell, base, 5, big.NewInt(0)); err != nil {
			return err
		}
		resultAddr, err := frameCell(machine, cell, base, 6)
		if err != nil {
			return err
		}
		return machine.InsertValue(resultAddr, value)
	}

	if err := writeFrameInt(machine, cell, base, 4, gasCounter); err != nil {
		return err
	}
	return writeFrameInt(machine, cell, base, 5, big.NewInt(1))
}
