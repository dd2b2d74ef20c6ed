package casmhintrunner_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	casmhintrunner "github.com/vybium/casm-hintrunner/pkg/casm-hintrunner"
)

// nopBody builds a single-word instruction that advances pc by one
// word and leaves ap/fp exactly as apUpdate directs, without asserting
// anything about dst/op0/op1 itself.
func nopBody(apUpdate casmhintrunner.ApUpdate) casmhintrunner.InstructionBody {
	return casmhintrunner.InstructionBody{
		DstRegister: casmhintrunner.AP,
		OffDst:      9,
		Op0Register: casmhintrunner.AP,
		OffOp0:      9,
		Op1Src:      casmhintrunner.Op1SrcAP,
		OffOp1:      9,
		Res:         casmhintrunner.ResUnconstrained,
		PcUpdate:    casmhintrunner.PcNextInstr,
		ApUpdate:    apUpdate,
		Opcode:      casmhintrunner.OpNOp,
	}
}

// bumpApBy builds an instruction that advances ap by exactly n via
// ApAddRes, carrying n as its own immediate so no prior cell needs to
// hold it.
func bumpApBy(n int64) casmhintrunner.Instruction {
	return casmhintrunner.Instruction{Body: casmhintrunner.InstructionBody{
		DstRegister: casmhintrunner.AP,
		OffDst:      0,
		Op0Register: casmhintrunner.AP,
		OffOp0:      0,
		Op1Src:      casmhintrunner.Op1SrcImm,
		OffOp1:      1,
		Res:         casmhintrunner.ResOp1,
		PcUpdate:    casmhintrunner.PcNextInstr,
		ApUpdate:    casmhintrunner.ApAddRes,
		Opcode:      casmhintrunner.OpNOp,
		Imm:         casmhintrunner.NewFieldElement(big.NewInt(n)),
	}}
}

// writeFrameField emits the two instructions needed to write value at
// address *ptr + offset: one that parks value in a known scratch cell,
// and one that copies it through the indirect (double-deref) address
// by letting assert-eq's reverse inference fill the still-unknown
// pointed-to cell from the now-known scratch cell. This is the same
// addressing CASM itself uses to populate a dynamically allocated
// struct: op1 reached through op0 (Op1SrcOp0).
func writeFrameField(ptr casmhintrunner.CellRef, offset int16, value *big.Int, scratch *int16) []casmhintrunner.Instruction {
	cell := *scratch
	*scratch++
	park := casmhintrunner.Instruction{Body: casmhintrunner.InstructionBody{
		DstRegister: casmhintrunner.AP,
		OffDst:      cell,
		Op0Register: casmhintrunner.AP,
		OffOp0:      cell,
		Op1Src:      casmhintrunner.Op1SrcImm,
		OffOp1:      1,
		Res:         casmhintrunner.ResOp1,
		PcUpdate:    casmhintrunner.PcNextInstr,
		ApUpdate:    casmhintrunner.ApRegular,
		Opcode:      casmhintrunner.OpAssertEq,
		Imm:         casmhintrunner.NewFieldElement(value),
	}}
	scatter := casmhintrunner.Instruction{Body: casmhintrunner.InstructionBody{
		DstRegister: casmhintrunner.AP,
		OffDst:      cell,
		Op0Register: ptr.Register,
		OffOp0:      ptr.Offset,
		Op1Src:      casmhintrunner.Op1SrcOp0,
		OffOp1:      offset,
		Res:         casmhintrunner.ResOp1,
		PcUpdate:    casmhintrunner.PcNextInstr,
		ApUpdate:    casmhintrunner.ApRegular,
		Opcode:      casmhintrunner.OpAssertEq,
	}}
	return []casmhintrunner.Instruction{park, scatter}
}

// readFrameField emits the single instruction that copies the value
// already present at *ptr + offset (written earlier by a hint) into a
// fresh scratch cell, via the same indirect addressing in the forward
// direction: op1 is known, dst is not, so assert-eq's normal
// empty-dst-gets-res path writes it.
func readFrameField(ptr casmhintrunner.CellRef, offset int16, scratch *int16) casmhintrunner.Instruction {
	cell := *scratch
	*scratch++
	return casmhintrunner.Instruction{Body: casmhintrunner.InstructionBody{
		DstRegister: casmhintrunner.AP,
		OffDst:      cell,
		Op0Register: ptr.Register,
		OffOp0:      ptr.Offset,
		Op1Src:      casmhintrunner.Op1SrcOp0,
		OffOp1:      offset,
		Res:         casmhintrunner.ResOp1,
		PcUpdate:    casmhintrunner.PcNextInstr,
		ApUpdate:    casmhintrunner.ApRegular,
		Opcode:      casmhintrunner.OpAssertEq,
	}}
}

func selectorValue(name string) *big.Int {
	return new(big.Int).SetBytes([]byte(name))
}

// TestE1AllocSegment: AP[0] ends up holding a relocatable to a fresh,
// empty segment: its address is past every cell the run ever wrote.
func TestE1AllocSegment(t *testing.T) {
	ptr := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	instructions := []casmhintrunner.Instruction{
		{Body: nopBody(casmhintrunner.ApRegular), Hints: []casmhintrunner.Hint{casmhintrunner.AllocSegment(ptr)}},
	}

	memory, ap, err := casmhintrunner.Run(instructions, nil)
	require.NoError(t, err)
	require.Greater(t, len(memory), ap)
	require.NotNil(t, memory[ap])
	assert.True(t, memory[ap].Big().Cmp(big.NewInt(int64(len(memory)))) > 0,
		"AllocSegment's base must point past every written cell (a fresh, empty segment)")
}

// TestE2DivMod covers §8 E2: 17 / 5 = 3 remainder 2, truncated division.
func TestE2DivMod(t *testing.T) {
	quotient := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	remainder := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 1}
	lhs := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(17)))
	rhs := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(5)))

	instructions := []casmhintrunner.Instruction{
		{
			Body:  nopBody(casmhintrunner.ApAdd2),
			Hints: []casmhintrunner.Hint{casmhintrunner.DivMod(lhs, rhs, quotient, remainder)},
		},
	}

	values, err := casmhintrunner.RunAndTake(instructions, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, "3", values[0].String())
	assert.Equal(t, "2", values[1].String())
}

// TestE2DivModByZero covers the ArithmeticError case: rhs = 0 is fatal.
func TestE2DivModByZero(t *testing.T) {
	quotient := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	remainder := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 1}
	lhs := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(17)))
	rhs := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(0)))

	instructions := []casmhintrunner.Instruction{
		{Body: nopBody(casmhintrunner.ApRegular), Hints: []casmhintrunner.Hint{casmhintrunner.DivMod(lhs, rhs, quotient, remainder)}},
	}

	_, _, err := casmhintrunner.Run(instructions, nil)
	require.Error(t, err)
}

// TestE3TestLessThan covers §8 E3 in both directions.
func TestE3TestLessThan(t *testing.T) {
	dst := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	three := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(3)))
	five := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(5)))

	trueCase := []casmhintrunner.Instruction{
		{Body: nopBody(casmhintrunner.ApAdd1), Hints: []casmhintrunner.Hint{casmhintrunner.TestLessThan(three, five, dst)}},
	}
	values, err := casmhintrunner.RunAndTake(trueCase, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "1", values[0].String())

	falseCase := []casmhintrunner.Instruction{
		{Body: nopBody(casmhintrunner.ApAdd1), Hints: []casmhintrunner.Hint{casmhintrunner.TestLessThan(five, three, dst)}},
	}
	values, err = casmhintrunner.RunAndTake(falseCase, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "0", values[0].String())
}

// TestE3TestLessThanOrEqualBoundary checks equality resolves true only
// for TestLessThanOrEqual, not TestLessThan.
func TestE3TestLessThanOrEqualBoundary(t *testing.T) {
	dst := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	five := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(5)))

	lt := []casmhintrunner.Instruction{
		{Body: nopBody(casmhintrunner.ApAdd1), Hints: []casmhintrunner.Hint{casmhintrunner.TestLessThan(five, five, dst)}},
	}
	values, err := casmhintrunner.RunAndTake(lt, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "0", values[0].String())

	lte := []casmhintrunner.Instruction{
		{Body: nopBody(casmhintrunner.ApAdd1), Hints: []casmhintrunner.Hint{casmhintrunner.TestLessThanOrEqual(five, five, dst)}},
	}
	values, err = casmhintrunner.RunAndTake(lte, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "1", values[0].String())
}

// TestE6ReturnExtraction covers §8 E6: run_and_take drops the cells
// before ap-n and returns exactly the trailing n.
func TestE6ReturnExtraction(t *testing.T) {
	a := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	b := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 1}
	// The second hint fires after the first instruction has advanced ap
	// by 2, so ap + 0 there is the cell right after b.
	c := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	imm := func(n int64) casmhintrunner.ResOperand {
		return casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(n)))
	}

	instructions := []casmhintrunner.Instruction{
		{Body: nopBody(casmhintrunner.ApAdd2), Hints: []casmhintrunner.Hint{casmhintrunner.DivMod(imm(10), imm(4), a, b)}},
		{Body: nopBody(casmhintrunner.ApAdd1), Hints: []casmhintrunner.Hint{casmhintrunner.TestLessThan(imm(1), imm(2), c)}},
	}

	values, err := casmhintrunner.RunAndTake(instructions, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "2", values[0].String()) // quotient 10/4
	assert.Equal(t, "2", values[1].String()) // remainder 10/4
	assert.Equal(t, "1", values[2].String()) // 1 < 2
}

// TestReturnExtractionPastAvailableCellsFails covers the ExtractionError
// path: requesting more return values than the run produced is fatal.
func TestReturnExtractionPastAvailableCellsFails(t *testing.T) {
	instructions := []casmhintrunner.Instruction{{Body: nopBody(casmhintrunner.ApRegular)}}
	_, err := casmhintrunner.RunAndTake(instructions, nil, 1000)
	require.Error(t, err)
}

// TestRunIsDeterministic covers §8 property 3: identical instructions
// and builtins produce identical (memory, ap) across repeated runs.
func TestRunIsDeterministic(t *testing.T) {
	dst := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	lhs := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(9)))
	rhs := casmhintrunner.NewImmediateResOperand(casmhintrunner.NewFieldElement(big.NewInt(4)))
	build := func() []casmhintrunner.Instruction {
		return []casmhintrunner.Instruction{
			{Body: nopBody(casmhintrunner.ApAdd1), Hints: []casmhintrunner.Hint{casmhintrunner.TestLessThan(rhs, lhs, dst)}},
		}
	}

	mem1, ap1, err := casmhintrunner.Run(build(), nil)
	require.NoError(t, err)
	mem2, ap2, err := casmhintrunner.Run(build(), nil)
	require.NoError(t, err)

	assert.Equal(t, ap1, ap2)
	require.Equal(t, len(mem1), len(mem2))
	for i := range mem1 {
		if mem1[i] == nil {
			assert.Nil(t, mem2[i])
			continue
		}
		assert.True(t, mem1[i].Equal(mem2[i]))
	}
}

// TestE4StorageRoundTrip covers §8 E4 end to end through the public
// Run API: a StorageWrite followed by a StorageRead of the same addr
// in the same run sees the written value and is charged the right gas.
func TestE4StorageRoundTrip(t *testing.T) {
	// writeFrame/readFrame each occupy a fixed ap-relative slot; every
	// instruction in this program uses ApRegular, so ap (and therefore
	// the absolute address each "ap + k" offset names) never moves
	// until the explicit bump at the very end.
	writeFrame := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 0}
	readFrame := casmhintrunner.CellRef{Register: casmhintrunner.AP, Offset: 1}
	var scratch int16 = 2

	var instructions []casmhintrunner.Instruction
	instructions = append(instructions, withHint(nopBody(casmhintrunner.ApRegular), casmhintrunner.AllocSegment(writeFrame)))
	instructions = append(instructions, writeFrameField(writeFrame, 0, selectorValue("StorageWrite"), &scratch)...)
	instructions = append(instructions, writeFrameField(writeFrame, 1, big.NewInt(2000), &scratch)...)
	instructions = append(instructions, writeFrameField(writeFrame, 2, big.NewInt(0), &scratch)...)
	instructions = append(instructions, writeFrameField(writeFrame, 3, big.NewInt(7), &scratch)...)
	instructions = append(instructions, writeFrameField(writeFrame, 4, big.NewInt(42), &scratch)...)
	instructions = append(instructions, casmhintrunner.Instruction{
		Body:  nopBody(casmhintrunner.ApRegular),
		Hints: []casmhintrunner.Hint{casmhintrunner.SystemCall(casmhintrunner.NewDerefResOperand(writeFrame))},
	})

	// Second frame: StorageRead(addr=7, gas=500, domain=0).
	instructions = append(instructions, withHint(nopBody(casmhintrunner.ApRegular), casmhintrunner.AllocSegment(readFrame)))
	instructions = append(instructions, writeFrameField(readFrame, 0, selectorValue("StorageRead"), &scratch)...)
	instructions = append(instructions, writeFrameField(readFrame, 1, big.NewInt(500), &scratch)...)
	instructions = append(instructions, writeFrameField(readFrame, 2, big.NewInt(0), &scratch)...)
	instructions = append(instructions, writeFrameField(readFrame, 3, big.NewInt(7), &scratch)...)
	instructions = append(instructions, casmhintrunner.Instruction{
		Body:  nopBody(casmhintrunner.ApRegular),
		Hints: []casmhintrunner.Hint{casmhintrunner.SystemCall(casmhintrunner.NewDerefResOperand(readFrame))},
	})

	resultsStart := scratch
	instructions = append(instructions, readFrameField(writeFrame, 5, &scratch)) // write gas_counter_updated
	instructions = append(instructions, readFrameField(writeFrame, 6, &scratch)) // write revert_reason
	instructions = append(instructions, readFrameField(readFrame, 4, &scratch))  // read gas_counter_updated
	instructions = append(instructions, readFrameField(readFrame, 5, &scratch))  // read revert_reason
	instructions = append(instructions, readFrameField(readFrame, 6, &scratch))  // read result

	instructions = append(instructions, bumpApBy(int64(scratch)))

	values, err := casmhintrunner.RunAndTake(instructions, nil, int(scratch-resultsStart))
	require.NoError(t, err)
	assert.Equal(t, "1000", values[0].String()) // write: gas_counter_updated = 2000 - 1000
	assert.Equal(t, "0", values[1].String())    // write: revert_reason = 0
	assert.Equal(t, "400", values[2].String())  // read: gas_counter_updated = 500 - 100
	assert.Equal(t, "0", values[3].String())    // read: revert_reason = 0
	assert.Equal(t, "42", values[4].String())   // read: result = the value StorageWrite stored
}

func withHint(body casmhintrunner.InstructionBody, h casmhintrunner.Hint) casmhintrunner.Instruction {
	return casmhintrunner.Instruction{Body: body, Hints: []casmhintrunner.Hint{h}}
}
