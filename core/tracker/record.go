package tracker

import (
	"encoding/binary"
	"fmt"

	"github.com/axiomesh/tally/types"
)

// RecordSize is the fixed length of a tracker record:
// record_bump(1) | delegate_bump(1) | proposal_ref(32) | approve_count(8) | reject_count(8)
const RecordSize = 1 + 1 + types.AddressLength + 8 + 8

// Record holds one user's votes on one proposal.
type Record struct {
	// bump of the record's own address, seeds [user, counter]
	RecordBump uint8 `json:"record_bump"`
	// bump of the delegate signer, seeds [counter]
	DelegateBump uint8         `json:"delegate_bump"`
	ProposalRef  types.Address `json:"proposal_ref"`
	ApproveCount uint64        `json:"approve_count"`
	RejectCount  uint64        `json:"reject_count"`
}

func (r *Record) Marshal() []byte {
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, r.RecordBump, r.DelegateBump)
	buf = append(buf, r.ProposalRef[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, r.ApproveCount)
	return binary.LittleEndian.AppendUint64(buf, r.RejectCount)
}

func UnmarshalRecord(data []byte) (*Record, error) {
	if len(data) != RecordSize {
		return nil, fmt.Errorf("tracker record has %d bytes, want %d", len(data), RecordSize)
	}
	return &Record{
		RecordBump:   data[0],
		DelegateBump: data[1],
		ProposalRef:  types.BytesToAddress(data[2:34]),
		ApproveCount: binary.LittleEndian.Uint64(data[34:42]),
		RejectCount:  binary.LittleEndian.Uint64(data[42:50]),
	}, nil
}

// Voted reports whether the record has cast any vote.
func (r *Record) Voted() bool {
	return r.ApproveCount > 0 || r.RejectCount > 0
}
