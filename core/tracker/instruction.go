package tracker

import (
	"encoding/binary"
	"fmt"

	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/types"
)

type Kind uint8

const (
	Initialize Kind = iota
	Approve
	Reject
	// Bind hands an unbound counter record to the delegate signer
	Bind
)

func (k Kind) String() string {
	switch k {
	case Initialize:
		return "initialize"
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	case Bind:
		return "bind"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Instruction is a discriminant with no payload, except that Bind carries the
// proposal id stored in the counter record.
type Instruction struct {
	Kind       Kind
	ProposalID uint32
}

func (ix Instruction) Encode() []byte {
	buf := []byte{byte(ix.Kind)}
	if ix.Kind == Bind {
		buf = binary.LittleEndian.AppendUint32(buf, ix.ProposalID)
	}
	return buf
}

func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return Instruction{}, fmt.Errorf("empty instruction")
	}
	ix := Instruction{Kind: Kind(data[0])}
	switch ix.Kind {
	case Initialize, Approve, Reject:
		if len(data) != 1 {
			return Instruction{}, fmt.Errorf("%s takes no payload, got %d bytes", ix.Kind, len(data)-1)
		}
	case Bind:
		if len(data) != 5 {
			return Instruction{}, fmt.Errorf("bind payload has %d bytes, want 4", len(data)-1)
		}
		ix.ProposalID = binary.LittleEndian.Uint32(data[1:])
	default:
		return Instruction{}, fmt.Errorf("unknown instruction %d", data[0])
	}
	return ix, nil
}

// NewInitializeInstruction creates the tracker record of user for counter.
func NewInitializeInstruction(programID, user, counter types.Address) (ledger.Instruction, error) {
	record, _, err := FindRecord(programID, user, counter)
	if err != nil {
		return ledger.Instruction{}, err
	}
	delegate, _, err := FindDelegate(programID, counter)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(record, false),
			ledger.WritableMeta(user, true),
			ledger.ReadonlyMeta(delegate, false),
			ledger.ReadonlyMeta(counter, false),
			ledger.ReadonlyMeta(ledger.SystemProgramID, false),
		},
		Data: Instruction{Kind: Initialize}.Encode(),
	}, nil
}

// NewBindInstruction binds counter to the delegate signer of this program.
// The counter record must sign the transaction.
func NewBindInstruction(programID, counterProgram, counter types.Address, proposalID uint32) (ledger.Instruction, error) {
	delegate, _, err := FindDelegate(programID, counter)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(counter, true),
			ledger.ReadonlyMeta(delegate, false),
			ledger.ReadonlyMeta(counterProgram, false),
		},
		Data: Instruction{Kind: Bind, ProposalID: proposalID}.Encode(),
	}, nil
}

// NewVoteInstruction casts kind (Approve or Reject) for user through its
// tracker record.
func NewVoteInstruction(programID, user, counterProgram, counter types.Address, kind Kind) (ledger.Instruction, error) {
	record, _, err := FindRecord(programID, user, counter)
	if err != nil {
		return ledger.Instruction{}, err
	}
	delegate, _, err := FindDelegate(programID, counter)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(record, false),
			ledger.ReadonlyMeta(user, true),
			ledger.ReadonlyMeta(counterProgram, false),
			ledger.WritableMeta(counter, false),
			ledger.ReadonlyMeta(delegate, false),
		},
		Data: Instruction{Kind: kind}.Encode(),
	}, nil
}
