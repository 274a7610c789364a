package pda

import (
	"github.com/axiomesh/tally/types"
)

// Capability is the proof a program presents to the runtime to sign for one
// of its derived addresses. The runtime only honours it when ProgramID is the
// program currently executing.
type Capability struct {
	ProgramID types.Address
	Seeds     [][]byte
	Bump      uint8
}

func NewCapability(programID types.Address, bump uint8, seeds ...[]byte) Capability {
	return Capability{
		ProgramID: programID,
		Seeds:     seeds,
		Bump:      bump,
	}
}

// SignerSeeds returns the seeds with the bump appended.
func (c Capability) SignerSeeds() [][]byte {
	return withBump(c.Seeds, c.Bump)
}

func (c Capability) Address() (types.Address, error) {
	return CreateProgramAddress(c.SignerSeeds(), c.ProgramID)
}

// Authorizes reports whether the capability derives exactly addr.
func (c Capability) Authorizes(addr types.Address) bool {
	return Verify(c.Seeds, c.Bump, c.ProgramID, addr)
}
