// Package vm implements the CASM register machine: operand resolution,
// instruction decoding, the segmented memory model and the single-step
// execution semantics the runner drives.
package vm

import (
	"fmt"
	"math/big"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"
)

// Relocatable is a (segment, offset) address into the VM's segmented
// memory, prior to the final linearizing relocation pass.
type Relocatable struct {
	SegmentIndex int
	Offset       uint64
}

// String renders a relocatable the way the VM reports addresses in
// error messages.
func (r Relocatable) String() string {
	return fmt.Sprintf("%d:%d", r.SegmentIndex, r.Offset)
}

// AddMod advances the address by offset, reduced modulo prime as the
// spec's address-arithmetic invariant requires, and fails if the
// resulting offset no longer fits a segment offset.
func (r Relocatable) AddMod(offset *big.Int, prime *big.Int) (Relocatable, error) {
	cur := new(big.Int).SetUint64(r.Offset)
	sum := new(big.Int).Add(cur, offset)
	sum.Mod(sum, prime)
	if !sum.IsUint64() {
		return Relocatable{}, fmt.Errorf("offset overflow: %s + %s", cur, offset)
	}
	return Relocatable{SegmentIndex: r.SegmentIndex, Offset: sum.Uint64()}, nil
}

// MaybeRelocatable is a single memory cell value: either a field element
// or a relocatable address. Exactly one of the two is populated.
type MaybeRelocatable struct {
	isRelocatable bool
	rel           Relocatable
	int           *core.FieldElement
}

// FromFieldElement wraps a field element as a memory cell value.
func FromFieldElement(fe *core.FieldElement) MaybeRelocatable {
	return MaybeRelocatable{int: fe}
}

// FromRelocatable wraps a relocatable address as a memory cell value.
func FromRelocatable(r Relocatable) MaybeRelocatable {
	return MaybeRelocatable{isRelocatable: true, rel: r}
}

// IsRelocatable reports whether the cell holds an address rather than a
// field element.
func (m MaybeRelocatable) IsRelocatable() bool {
	return m.isRelocatable
}

// FieldElement returns the cell's integer value, failing if the cell
// holds a relocatable instead.
func (m MaybeRelocatable) FieldElement() (*core.FieldElement, error) {
	if m.isRelocatable {
		return nil, fmt.Errorf("expected field element, got relocatable %s", m.rel)
	}
	return m.int, nil
}

// Relocatable returns the cell's address value, failing if the cell
// holds a field element instead.
func (m MaybeRelocatable) Relocatable() (Relocatable, error) {
	if !m.isRelocatable {
		return Relocatable{}, fmt.Errorf("expected relocatable, got field element %s", m.int)
	}
	return m.rel, nil
}

// Memory is the VM's segmented address space. Segments grow
// independently and are linearized only by Relocate.
type Memory struct {
	segments [][]*MaybeRelocatable
}

// NewMemory creates an empty segmented memory.
func NewMemory() *Memory {
	return &Memory{segments: make([][]*MaybeRelocatable, 0)}
}

// AddSegment allocates a fresh, empty memory segment and returns its
// base address.
func (m *Memory) AddSegment() Relocatable {
	m.segments = append(m.segments, make([]*MaybeRelocatable, 0))
	return Relocatable{SegmentIndex: len(m.segments) - 1, Offset: 0}
}

// SegmentLen returns the number of cells written so far in a segment.
func (m *Memory) SegmentLen(segmentIndex int) (int, error) {
	if segmentIndex < 0 || segmentIndex >= len(m.segments) {
		return 0, fmt.Errorf("unknown segment %d", segmentIndex)
	}
	return len(m.segments[segmentIndex]), nil
}

// NumSegments reports how many segments have been allocated.
func (m *Memory) NumSegments() int {
	return len(m.segments)
}

// Insert writes a value at addr. Memory cells are write-once: writing a
// different value to an already-populated cell is a VmError-class
// inconsistency, matching the real CASM VM's memory discipline.
func (m *Memory) Insert(addr Relocatable, value MaybeRelocatable) error {
	if addr.SegmentIndex < 0 || addr.SegmentIndex >= len(m.segments) {
		return fmt.Errorf("write to unknown segment %d", addr.SegmentIndex)
	}
	seg := m.segments[addr.SegmentIndex]
	if int(addr.Offset) >= len(seg) {
		grown := make([]*MaybeRelocatable, addr.Offset+1)
		copy(grown, seg)
		seg = grown
		m.segments[addr.SegmentIndex] = seg
	}
	if existing := seg[addr.Offset]; existing != nil {
		if !maybeRelocatableEqual(*existing, value) {
			return fmt.Errorf("inconsistent memory write at %s: existing %v, new %v", addr, existing, value)
		}
		return nil
	}
	seg[addr.Offset] = &value
	return nil
}

// Get reads the cell at addr, failing if it was never written.
func (m *Memory) Get(addr Relocatable) (*MaybeRelocatable, error) {
	if addr.SegmentIndex < 0 || addr.SegmentIndex >= len(m.segments) {
		return nil, fmt.Errorf("read from unknown segment %d", addr.SegmentIndex)
	}
	seg := m.segments[addr.SegmentIndex]
	if int(addr.Offset) >= len(seg) || seg[addr.Offset] == nil {
		return nil, fmt.Errorf("unknown memory cell at %s", addr)
	}
	return seg[addr.Offset], nil
}

// GetFieldElement reads and type-checks a field-element cell.
func (m *Memory) GetFieldElement(addr Relocatable) (*core.FieldElement, error) {
	v, err := m.Get(addr)
	if err != nil {
		return nil, err
	}
	return v.FieldElement()
}

// GetRelocatable reads and type-checks a relocatable cell.
func (m *Memory) GetRelocatable(addr Relocatable) (Relocatable, error) {
	v, err := m.Get(addr)
	if err != nil {
		return Relocatable{}, err
	}
	return v.Relocatable()
}

func maybeRelocatableEqual(a, b MaybeRelocatable) bool {
	if a.isRelocatable != b.isRelocatable {
		return false
	}
	if a.isRelocatable {
		return a.rel == b.rel
	}
	return a.int.Equal(b.int)
}

// segmentBases returns, for each segment, the 1-indexed relocated
// address of its offset 0 cell (the cairo convention: relocated memory
// is 1-indexed).
func (m *Memory) segmentBases() []uint64 {
	base := make([]uint64, len(m.segments))
	cursor := uint64(1)
	for i, seg := range m.segments {
		base[i] = cursor
		cursor += uint64(len(seg))
	}
	return base
}

// RelocatedIndex returns the 0-indexed position addr occupies in the
// slice Relocate returns, letting a caller translate a live (segment,
// offset) address (such as the final Ap) into the flat output space.
func (m *Memory) RelocatedIndex(addr Relocatable) (int, error) {
	if addr.SegmentIndex < 0 || addr.SegmentIndex >= len(m.segments) {
		return 0, fmt.Errorf("unknown segment %d", addr.SegmentIndex)
	}
	base := m.segmentBases()
	return int(base[addr.SegmentIndex] + addr.Offset - 1), nil
}

// Relocate linearizes every segment into a single slice of optional
// field elements, in the order segments were allocated. Relocatable
// cells are resolved into the linear offset of the segment they point
// to (base offset of their segment, plus their own offset), yielding
// plain field elements throughout, as the final relocated memory the
// caller inspects contains no more segment references.
func (m *Memory) Relocate(prime *big.Int) []*core.FieldElement {
	base := m.segmentBases()
	total := uint64(0)
	for _, seg := range m.segments {
		total += uint64(len(seg))
	}

	field := core.StarkNetField()
	out := make([]*core.FieldElement, total)
	idx := 0
	for _, seg := range m.segments {
		for _, cell := range seg {
			if cell == nil {
				idx++
				continue
			}
			if cell.isRelocatable {
				abs := base[cell.rel.SegmentIndex] + cell.rel.Offset
				out[idx] = field.NewElementFromUint64(abs)
			} else {
				out[idx] = cell.int
			}
			idx++
		}
	}
	return out
}
