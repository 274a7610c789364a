package core

import (
	"sync/atomic"
	"time"

	"github.com/axiomesh/tally/core/counter"
	"github.com/axiomesh/tally/core/tracker"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/repo"
	"github.com/axiomesh/tally/types"
	"github.com/pkg/errors"
)

// Client builds, signs and submits counter and tracker transactions.
type Client struct {
	rt       *ledger.Runtime
	programs *repo.ProgramSettings
	nonce    atomic.Uint64
}

func NewClient(rt *ledger.Runtime, programs *repo.ProgramSettings) *Client {
	c := &Client{
		rt:       rt,
		programs: programs,
	}
	// nonces must not repeat across process restarts
	c.nonce.Store(uint64(time.Now().UnixNano()))
	return c
}

func (c *Client) Programs() *repo.ProgramSettings {
	return c.programs
}

func (c *Client) submit(signers []*types.Keypair, ixs ...ledger.Instruction) (*ledger.Receipt, error) {
	tx := ledger.NewTransaction(c.nonce.Add(1), ixs...).Sign(signers...)
	return c.rt.Execute(tx)
}

func (c *Client) Airdrop(addr types.Address, lamports uint64) error {
	return c.rt.Airdrop(addr, lamports)
}

// CreateCounter allocates a counter record at the address of record, funded
// by payer. With explicit binding the same transaction binds it to the
// delegate signer of the tracker program, so no one else can claim it first.
func (c *Client) CreateCounter(payer, record *types.Keypair, proposalID uint32) (*ledger.Receipt, error) {
	ixs := []ledger.Instruction{
		counter.NewCreateRecordInstruction(c.programs.CounterID, payer.Address(), record.Address(), c.rt.Rent()),
	}
	if c.programs.Binding == counter.ExplicitBinding {
		bind, err := tracker.NewBindInstruction(c.programs.TrackerID, c.programs.CounterID, record.Address(), proposalID)
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, bind)
	}
	return c.submit([]*types.Keypair{payer, record}, ixs...)
}

// InitCounter allocates a counter record funded by authority and binds it to
// authority directly, without a tracker.
func (c *Client) InitCounter(authority, record *types.Keypair, proposalID uint32) (*ledger.Receipt, error) {
	return c.submit([]*types.Keypair{authority, record},
		counter.NewCreateRecordInstruction(c.programs.CounterID, authority.Address(), record.Address(), c.rt.Rent()),
		counter.NewInitializeInstruction(c.programs.CounterID, record.Address(), authority.Address(), proposalID),
	)
}

// InitTracker creates the tracker record of user for counterAddr.
func (c *Client) InitTracker(user *types.Keypair, counterAddr types.Address) (*ledger.Receipt, error) {
	ix, err := tracker.NewInitializeInstruction(c.programs.TrackerID, user.Address(), counterAddr)
	if err != nil {
		return nil, err
	}
	return c.submit([]*types.Keypair{user}, ix)
}

func (c *Client) Vote(user *types.Keypair, counterAddr types.Address, kind tracker.Kind) (*ledger.Receipt, error) {
	if kind != tracker.Approve && kind != tracker.Reject {
		return nil, errors.Errorf("%s is not a vote", kind)
	}
	ix, err := tracker.NewVoteInstruction(c.programs.TrackerID, user.Address(), c.programs.CounterID, counterAddr, kind)
	if err != nil {
		return nil, err
	}
	return c.submit([]*types.Keypair{user}, ix)
}

func (c *Client) Counter(addr types.Address) (*counter.Record, error) {
	data, err := c.ownedData(addr, c.programs.CounterID)
	if err != nil {
		return nil, err
	}
	return counter.UnmarshalRecord(data)
}

// Tracker returns the address and content of the tracker record of user for
// counterAddr.
func (c *Client) Tracker(user, counterAddr types.Address) (types.Address, *tracker.Record, error) {
	addr, _, err := tracker.FindRecord(c.programs.TrackerID, user, counterAddr)
	if err != nil {
		return addr, nil, err
	}
	data, err := c.ownedData(addr, c.programs.TrackerID)
	if err != nil {
		return addr, nil, err
	}
	record, err := tracker.UnmarshalRecord(data)
	return addr, record, err
}

func (c *Client) Balance(addr types.Address) (uint64, error) {
	acc, err := c.rt.Account(addr)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

func (c *Client) ownedData(addr, owner types.Address) ([]byte, error) {
	acc, err := c.rt.Account(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, errors.Errorf("account %s not found", addr)
	}
	if acc.Owner != owner {
		return nil, errors.Errorf("account %s is owned by %s, not %s", addr, acc.Owner, owner)
	}
	return acc.Data, nil
}
