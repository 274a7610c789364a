package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/tally/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Key layout
// 0x01 | address  => owner | lamports | data
// 0x02 | tx hash  => receipt
// 0x03 | "slot"   => last committed slot
const (
	accountPrefix byte = 0x01
	receiptPrefix byte = 0x02
	metaPrefix    byte = 0x03
)

var slotKey = append([]byte{metaPrefix}, "slot"...)

type Receipt struct {
	TxHash common.Hash `json:"tx_hash"`
	Slot   uint64      `json:"slot"`
	Logs   []string    `json:"logs"`
}

func encodeReceipt(r *Receipt) []byte {
	buf := binary.LittleEndian.AppendUint64(nil, r.Slot)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Logs)))
	for _, line := range r.Logs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(line)))
		buf = append(buf, line...)
	}
	return buf
}

func decodeReceipt(hash common.Hash, raw []byte) (*Receipt, error) {
	if len(raw) < 12 {
		return nil, fmt.Errorf("receipt encoding has %d bytes", len(raw))
	}
	r := &Receipt{
		TxHash: hash,
		Slot:   binary.LittleEndian.Uint64(raw),
	}
	n := binary.LittleEndian.Uint32(raw[8:])
	raw = raw[12:]
	for i := uint32(0); i < n; i++ {
		if len(raw) < 4 {
			return nil, fmt.Errorf("receipt log %d truncated", i)
		}
		l := binary.LittleEndian.Uint32(raw)
		raw = raw[4:]
		if uint32(len(raw)) < l {
			return nil, fmt.Errorf("receipt log %d truncated", i)
		}
		r.Logs = append(r.Logs, string(raw[:l]))
		raw = raw[l:]
	}
	return r, nil
}

// Store persists accounts and receipts in a key-value storage.
type Store struct {
	db storage.Storage
}

func NewStore(db storage.Storage) *Store {
	return &Store{db: db}
}

func accountKey(addr types.Address) []byte {
	return append([]byte{accountPrefix}, addr[:]...)
}

func receiptKey(hash common.Hash) []byte {
	return append([]byte{receiptPrefix}, hash[:]...)
}

// Account returns the stored account, or nil if none exists.
func (s *Store) Account(addr types.Address) (*Account, error) {
	raw := s.db.Get(accountKey(addr))
	if raw == nil {
		return nil, nil
	}
	acc, err := decodeAccount(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode account %s", addr)
	}
	return acc, nil
}

func (s *Store) Receipt(hash common.Hash) (*Receipt, error) {
	raw := s.db.Get(receiptKey(hash))
	if raw == nil {
		return nil, nil
	}
	r, err := decodeReceipt(hash, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode receipt %s", hash)
	}
	return r, nil
}

func (s *Store) HasReceipt(hash common.Hash) bool {
	return s.db.Has(receiptKey(hash))
}

func (s *Store) Slot() uint64 {
	raw := s.db.Get(slotKey)
	if len(raw) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(raw)
}

// commit writes accounts, the receipt (if any) and the slot in one batch.
// Accounts that no longer hold anything are deleted.
func (s *Store) commit(accounts map[types.Address]*Account, receipt *Receipt) {
	batch := s.db.NewBatch()
	for addr, acc := range accounts {
		if acc.Executable {
			continue
		}
		if !acc.InUse() {
			batch.Delete(accountKey(addr))
			continue
		}
		batch.Put(accountKey(addr), encodeAccount(acc))
	}
	if receipt != nil {
		batch.Put(receiptKey(receipt.TxHash), encodeReceipt(receipt))
		batch.Put(slotKey, binary.LittleEndian.AppendUint64(nil, receipt.Slot))
	}
	batch.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}
