package tracker

import (
	"github.com/axiomesh/tally/pda"
	"github.com/axiomesh/tally/types"
)

// DelegateSeeds scope the delegate signer to one counter record. Every
// tracker of the same proposal shares it.
func DelegateSeeds(counter types.Address) [][]byte {
	return [][]byte{counter.Bytes()}
}

// RecordSeeds scope a tracker record to one user and one counter record, in
// that order.
func RecordSeeds(user, counter types.Address) [][]byte {
	return [][]byte{user.Bytes(), counter.Bytes()}
}

func FindDelegate(programID, counter types.Address) (types.Address, uint8, error) {
	return pda.FindProgramAddress(DelegateSeeds(counter), programID)
}

func FindRecord(programID, user, counter types.Address) (types.Address, uint8, error) {
	return pda.FindProgramAddress(RecordSeeds(user, counter), programID)
}

func delegateCapability(programID, counter types.Address, bump uint8) pda.Capability {
	return pda.NewCapability(programID, bump, DelegateSeeds(counter)...)
}

func recordCapability(programID, user, counter types.Address, bump uint8) pda.Capability {
	return pda.NewCapability(programID, bump, RecordSeeds(user, counter)...)
}
