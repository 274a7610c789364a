package counter

import (
	"encoding/binary"
	"fmt"

	"github.com/axiomesh/tally/types"
)

// RecordSize is the fixed length of a counter record:
// authority(32) | proposal_id(4) | approve_count(8) | reject_count(8) | initialized(1)
const RecordSize = types.AddressLength + 4 + 8 + 8 + 1

// Record tallies the votes of one proposal. Authority is immutable once
// Initialized is set.
type Record struct {
	Authority    types.Address `json:"authority"`
	ProposalID   uint32        `json:"proposal_id"`
	ApproveCount uint64        `json:"approve_count"`
	RejectCount  uint64        `json:"reject_count"`
	Initialized  bool          `json:"initialized"`
}

func (r *Record) Marshal() []byte {
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, r.Authority[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, r.ProposalID)
	buf = binary.LittleEndian.AppendUint64(buf, r.ApproveCount)
	buf = binary.LittleEndian.AppendUint64(buf, r.RejectCount)
	if r.Initialized {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func UnmarshalRecord(data []byte) (*Record, error) {
	if len(data) != RecordSize {
		return nil, fmt.Errorf("counter record has %d bytes, want %d", len(data), RecordSize)
	}
	r := &Record{
		Authority:    types.BytesToAddress(data[:32]),
		ProposalID:   binary.LittleEndian.Uint32(data[32:36]),
		ApproveCount: binary.LittleEndian.Uint64(data[36:44]),
		RejectCount:  binary.LittleEndian.Uint64(data[44:52]),
	}
	switch data[52] {
	case 0:
	case 1:
		r.Initialized = true
	default:
		return nil, fmt.Errorf("counter record has invalid initialized flag %d", data[52])
	}
	return r, nil
}
