package counter

import (
	"encoding/binary"
	"fmt"

	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/types"
)

type Kind uint8

const (
	Approve Kind = iota
	Reject
	// Initialize binds the authority and proposal id of an empty record. The
	// record itself must sign.
	Initialize
)

func (k Kind) String() string {
	switch k {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	case Initialize:
		return "initialize"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Instruction struct {
	Kind       Kind
	ProposalID uint32
}

func (ix Instruction) Encode() []byte {
	buf := []byte{byte(ix.Kind)}
	if ix.Kind == Initialize {
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
	case Approve, Reject:
		if len(data) != 1 {
			return Instruction{}, fmt.Errorf("%s takes no payload, got %d bytes", ix.Kind, len(data)-1)
		}
	case Initialize:
		if len(data) != 5 {
			return Instruction{}, fmt.Errorf("initialize payload has %d bytes, want 4", len(data)-1)
		}
		ix.ProposalID = binary.LittleEndian.Uint32(data[1:])
	default:
		return Instruction{}, fmt.Errorf("unknown instruction %d", data[0])
	}
	return ix, nil
}

// NewVoteInstruction casts kind on record, authorized by authority.
func NewVoteInstruction(programID, record, authority types.Address, kind Kind) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(record, false),
			ledger.ReadonlyMeta(authority, true),
		},
		Data: Instruction{Kind: kind}.Encode(),
	}
}

// NewInitializeInstruction binds record to authority. Both must sign.
func NewInitializeInstruction(programID, record, authority types.Address, proposalID uint32) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(record, true),
			ledger.ReadonlyMeta(authority, true),
		},
		Data: Instruction{Kind: Initialize, ProposalID: proposalID}.Encode(),
	}
}

// NewCreateRecordInstruction allocates an empty record owned by programID.
// record must sign the transaction.
func NewCreateRecordInstruction(programID, payer, record types.Address, rent ledger.Rent) ledger.Instruction {
	return ledger.CreateAccountInstruction(payer, record, rent.MinimumBalance(RecordSize), RecordSize, programID)
}
