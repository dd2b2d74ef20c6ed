package hints

import "github.com/vybium/casm-hintrunner/internal/casm-hintrunner/core"

// StarknetExecScope is the simulated StarkNet key-value storage. It is
// created lazily on the first SystemCall within a run and persists for
// the run's whole lifetime; every later SystemCall in that same run
// sees the effects of earlier ones.
type StarknetExecScope struct {
	Storage map[string]*core.FieldElement
}

func newStarknetExecScope() *StarknetExecScope {
	return &StarknetExecScope{Storage: make(map[string]*core.FieldElement)}
}

// ExecutionScopes is a statically typed bag of the per-run scopes a
// hint may materialize. The source uses a heterogeneous name→Any slot
// table; since StarknetExecScope is the only scope kind this processor
// ever creates, a concrete optional field replaces it entirely.
type ExecutionScopes struct {
	Starknet *StarknetExecScope
}

// NewExecutionScopes creates an empty scope bag for a fresh run.
func NewExecutionScopes() *ExecutionScopes {
	return &ExecutionScopes{}
}

// starknet returns the run's StarknetExecScope, materializing it with
// empty storage on first access. Absence on first access is expected,
// not an error.
func (s *ExecutionScopes) starknet() *StarknetExecScope {
	if s.Starknet == nil {
		s.Starknet = newStarknetExecScope()
	}
	return s.Starknet
}
