package ledger

import (
	"encoding/binary"

	"github.com/axiomesh/tally/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type AccountMeta struct {
	Address    types.Address
	IsSigner   bool
	IsWritable bool
}

func WritableMeta(addr types.Address, isSigner bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: isSigner, IsWritable: true}
}

func ReadonlyMeta(addr types.Address, isSigner bool) AccountMeta {
	return AccountMeta{Address: addr, IsSigner: isSigner}
}

type Instruction struct {
	ProgramID types.Address
	Accounts  []AccountMeta
	Data      []byte
}

type Signature struct {
	Signer types.Address
	Sig    []byte
}

// Transaction is the unit of atomic execution. Nonce lets a client submit the
// same instructions twice; identical messages are rejected as replays.
type Transaction struct {
	Nonce        uint64
	Instructions []Instruction
	Signatures   []Signature
}

func NewTransaction(nonce uint64, ixs ...Instruction) *Transaction {
	return &Transaction{
		Nonce:        nonce,
		Instructions: ixs,
	}
}

// Message is the byte string every signer signs:
// nonce | ix count | (program | meta count | (address | flags)* | data len | data)*
func (tx *Transaction) Message() []byte {
	buf := binary.LittleEndian.AppendUint64(nil, tx.Nonce)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Instructions)))
	for _, ix := range tx.Instructions {
		buf = append(buf, ix.ProgramID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.Accounts)))
		for _, m := range ix.Accounts {
			var flags byte
			if m.IsSigner {
				flags |= 1
			}
			if m.IsWritable {
				flags |= 2
			}
			buf = append(buf, m.Address[:]...)
			buf = append(buf, flags)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf
}

func (tx *Transaction) Hash() common.Hash {
	return crypto.Keccak256Hash(tx.Message())
}

// Sign appends one signature per keypair over the current message.
func (tx *Transaction) Sign(keys ...*types.Keypair) *Transaction {
	msg := tx.Message()
	for _, k := range keys {
		tx.Signatures = append(tx.Signatures, Signature{
			Signer: k.Address(),
			Sig:    k.Sign(msg),
		})
	}
	return tx
}

func (tx *Transaction) verifySignatures(msg []byte) (map[types.Address]bool, error) {
	signers := make(map[types.Address]bool, len(tx.Signatures))
	for _, s := range tx.Signatures {
		if !types.VerifySignature(s.Signer, msg, s.Sig) {
			return nil, Errorf(InvalidSignature, "signature by %s does not verify", s.Signer)
		}
		signers[s.Signer] = true
	}
	return signers, nil
}

// accountMetas merges the metas of every instruction, keeping first-seen order
// and the widest privileges requested for each address.
func (tx *Transaction) accountMetas() []AccountMeta {
	index := make(map[types.Address]int)
	var metas []AccountMeta
	for _, ix := range tx.Instructions {
		for _, m := range ix.Accounts {
			i, ok := index[m.Address]
			if !ok {
				index[m.Address] = len(metas)
				metas = append(metas, m)
				continue
			}
			metas[i].IsSigner = metas[i].IsSigner || m.IsSigner
			metas[i].IsWritable = metas[i].IsWritable || m.IsWritable
		}
	}
	return metas
}
