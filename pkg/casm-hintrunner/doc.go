// Package casmhintrunner runs a CASM (Cairo Assembly) instruction
// stream to completion and evaluates the hints attached to it,
// including a simulated StarkNet syscall interface with persistent
// key-value storage and gas metering.
//
// # Quick Start
//
// Running a hand-assembled instruction stream and collecting its
// return values:
//
//	instructions := []casmhintrunner.Instruction{ /* ... */ }
//	values, err := casmhintrunner.RunAndTake(instructions, nil, 2)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Running without trimming to return values, to inspect the whole
// relocated memory and final allocation pointer:
//
//	memory, ap, err := casmhintrunner.Run(instructions, nil)
//
// # Architecture
//
// - pkg/casm-hintrunner/: public API (this package)
// - internal/casm-hintrunner/core/: field arithmetic over the StarkNet prime
// - internal/casm-hintrunner/vm/: the CASM register machine
// - internal/casm-hintrunner/hints/: the hint IR and its processor
//
// Implementation details under internal/ can change without breaking
// callers of this package.
//
// # Non-goals
//
// This package does not generate or verify STARK proofs, perform
// deterministic parallel execution, touch the network or filesystem,
// or persist VM state across runs. Each call to Run/RunAndTake owns
// its own VM, hint processor and execution scopes; concurrent calls
// never share state.
package casmhintrunner
