package ledger

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/tally/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Program is the logic behind a program identity. Process runs one
// instruction; returning an error aborts the whole transaction.
type Program interface {
	ID() types.Address
	Process(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error
}

type Runtime struct {
	store  *Store
	rent   Rent
	logger logrus.FieldLogger

	programsMu sync.RWMutex
	programs   map[types.Address]Program

	locks    *accountLocks
	inflight sync.Map

	commitMu sync.Mutex
	slot     uint64
}

type Option func(*Runtime)

func WithRent(rent Rent) Option {
	return func(r *Runtime) {
		r.rent = rent
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// NewRuntime serves the accounts held in db. The system program is always
// registered.
func NewRuntime(db storage.Storage, opts ...Option) *Runtime {
	store := NewStore(db)
	r := &Runtime{
		store:    store,
		rent:     DefaultRent(),
		logger:   logrus.StandardLogger(),
		programs: make(map[types.Address]Program),
		locks:    newAccountLocks(),
		slot:     store.Slot(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.programs[SystemProgramID] = &SystemProgram{}
	return r
}

func (r *Runtime) Register(p Program) error {
	r.programsMu.Lock()
	defer r.programsMu.Unlock()

	if _, ok := r.programs[p.ID()]; ok {
		return fmt.Errorf("program %s already registered", p.ID())
	}
	r.programs[p.ID()] = p
	r.logger.WithField("program", p.ID().Hex()).Debug("program registered")
	return nil
}

func (r *Runtime) program(id types.Address) (Program, bool) {
	r.programsMu.RLock()
	defer r.programsMu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

func (r *Runtime) Rent() Rent {
	return r.rent
}

// Execute verifies, runs and commits tx. Either every instruction succeeds and
// all account changes are stored together, or nothing is stored.
func (r *Runtime) Execute(tx *Transaction) (*Receipt, error) {
	msg := tx.Message()
	hash := crypto.Keccak256Hash(msg)
	logger := r.logger.WithField("tx", hash.Hex())

	signers, err := tx.verifySignatures(msg)
	if err != nil {
		return nil, err
	}

	if _, busy := r.inflight.LoadOrStore(hash, struct{}{}); busy {
		return nil, Errorf(AlreadyProcessed, "transaction %s is executing", hash)
	}
	defer r.inflight.Delete(hash)

	metas := tx.accountMetas()
	for _, m := range metas {
		if m.IsSigner && !signers[m.Address] {
			return nil, Errorf(MissingAuthorization, "account %s did not sign", m.Address)
		}
	}

	release := r.locks.acquire(metas)
	defer release()

	if r.store.HasReceipt(hash) {
		return nil, Errorf(AlreadyProcessed, "transaction %s", hash)
	}

	working, err := r.load(metas)
	if err != nil {
		return nil, err
	}

	exec := &execution{
		runtime:  r,
		accounts: working,
		logger:   logger,
	}
	for i, ix := range tx.Instructions {
		infos := make([]*AccountInfo, 0, len(ix.Accounts))
		for _, m := range ix.Accounts {
			infos = append(infos, &AccountInfo{
				Key:        m.Address,
				IsSigner:   m.IsSigner,
				IsWritable: m.IsWritable,
				Account:    working[m.Address],
			})
		}
		if err := exec.run(ix, infos); err != nil {
			logger.WithError(err).Debug("transaction failed")
			return nil, errors.Wrapf(err, "instruction %d", i)
		}
	}

	writable := make(map[types.Address]*Account)
	for _, m := range metas {
		if m.IsWritable {
			writable[m.Address] = working[m.Address]
		}
	}

	r.commitMu.Lock()
	r.slot++
	receipt := &Receipt{
		TxHash: hash,
		Slot:   r.slot,
		Logs:   exec.logs,
	}
	r.store.commit(writable, receipt)
	r.commitMu.Unlock()

	logger.WithField("slot", receipt.Slot).Debug("transaction committed")
	return receipt, nil
}

// load copies the accounts named by metas into a private working set.
func (r *Runtime) load(metas []AccountMeta) (map[types.Address]*Account, error) {
	working := make(map[types.Address]*Account, len(metas))
	for _, m := range metas {
		if _, ok := r.program(m.Address); ok {
			working[m.Address] = &Account{Owner: NativeLoaderID, Executable: true}
			continue
		}
		acc, err := r.store.Account(m.Address)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = &Account{Owner: SystemProgramID}
		}
		working[m.Address] = acc
	}
	return working, nil
}

// Airdrop credits lamports to addr outside of any transaction.
func (r *Runtime) Airdrop(addr types.Address, lamports uint64) error {
	meta := WritableMeta(addr, false)
	release := r.locks.acquire([]AccountMeta{meta})
	defer release()

	working, err := r.load([]AccountMeta{meta})
	if err != nil {
		return err
	}
	acc := working[addr]
	if acc.Executable {
		return Errorf(ExternalLamportSpend, "cannot airdrop to program %s", addr)
	}
	sum, carry := bits.Add64(acc.Lamports, lamports, 0)
	if carry != 0 {
		return Errorf(ArithmeticOverflow, "balance of %s", addr)
	}
	acc.Lamports = sum

	r.commitMu.Lock()
	r.store.commit(working, nil)
	r.commitMu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"address":  addr.Hex(),
		"lamports": lamports,
	}).Info("airdrop")
	return nil
}

// Account returns a copy of the stored account, or nil when it does not exist.
func (r *Runtime) Account(addr types.Address) (*Account, error) {
	meta := ReadonlyMeta(addr, false)
	release := r.locks.acquire([]AccountMeta{meta})
	defer release()

	if _, ok := r.program(addr); ok {
		return &Account{Owner: NativeLoaderID, Executable: true}, nil
	}
	return r.store.Account(addr)
}

func (r *Runtime) Receipt(hash common.Hash) (*Receipt, error) {
	return r.store.Receipt(hash)
}

func (r *Runtime) Slot() uint64 {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	return r.slot
}

func (r *Runtime) Close() error {
	return r.store.Close()
}
