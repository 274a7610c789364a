// Package counter implements the shared tally of approve and reject votes for
// one proposal. Every mutation must be signed by the record's bound authority.
package counter

import (
	"fmt"
	"math"

	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/types"
)

// Binding decides how a record acquires its authority.
type Binding uint8

const (
	// ExplicitBinding requires Initialize before the first vote
	ExplicitBinding Binding = iota

	// FirstVoteBinding binds the authority to whoever casts the first vote
	FirstVoteBinding
)

func (b Binding) String() string {
	switch b {
	case ExplicitBinding:
		return "explicit"
	case FirstVoteBinding:
		return "first-vote"
	default:
		return fmt.Sprintf("binding(%d)", uint8(b))
	}
}

func ParseBinding(s string) (Binding, error) {
	switch s {
	case "explicit", "":
		return ExplicitBinding, nil
	case "first-vote":
		return FirstVoteBinding, nil
	default:
		return 0, fmt.Errorf("unknown counter binding %q", s)
	}
}

var _ ledger.Program = (*Program)(nil)

type Program struct {
	id      types.Address
	binding Binding
}

func New(id types.Address, binding Binding) *Program {
	return &Program{
		id:      id,
		binding: binding,
	}
}

func (p *Program) ID() types.Address {
	return p.id
}

func (p *Program) Process(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		return ledger.NewError(ledger.MalformedInstruction, err.Error())
	}
	ctx.Log("instruction: %s", ix.Kind)

	switch ix.Kind {
	case Initialize:
		return p.initialize(ctx, accounts, ix.ProposalID)
	default:
		return p.vote(ctx, accounts, ix.Kind)
	}
}

// load checks the authority signature and record ownership, then decodes the
// record.
func (p *Program) load(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo) (*ledger.AccountInfo, *ledger.AccountInfo, *Record, error) {
	if err := ledger.CheckAccounts(accounts, 2); err != nil {
		return nil, nil, nil, err
	}
	recordAI, authority := accounts[0], accounts[1]

	if err := ctx.Require(authority.IsSigner, ledger.MissingAuthorization, "authority must sign"); err != nil {
		return nil, nil, nil, err
	}
	if err := ctx.Require(recordAI.Owner == p.id, ledger.IncorrectProgramID, "counter record is not owned by the counter program"); err != nil {
		return nil, nil, nil, err
	}
	record, err := UnmarshalRecord(recordAI.Data)
	if err != nil {
		return nil, nil, nil, ledger.NewError(ledger.UninitializedRecord, err.Error())
	}
	return recordAI, authority, record, nil
}

func (p *Program) initialize(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, proposalID uint32) error {
	recordAI, authority, record, err := p.load(ctx, accounts)
	if err != nil {
		return err
	}
	// only the holder of the record key can choose its authority
	if err := ctx.Require(recordAI.IsSigner, ledger.MissingAuthorization, "counter record must sign its binding"); err != nil {
		return err
	}
	if err := ctx.Require(!record.Initialized, ledger.AlreadyInitialized, "counter authority is already bound"); err != nil {
		return err
	}

	record.Authority = authority.Key
	record.ProposalID = proposalID
	record.Initialized = true
	copy(recordAI.Data, record.Marshal())
	ctx.Log("proposal %d bound to %s", proposalID, authority.Key)
	return nil
}

func (p *Program) vote(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, kind Kind) error {
	recordAI, authority, record, err := p.load(ctx, accounts)
	if err != nil {
		return err
	}

	if !record.Initialized {
		if err := ctx.Require(p.binding == FirstVoteBinding, ledger.UninitializedRecord, "counter authority is not bound"); err != nil {
			return err
		}
		record.Authority = authority.Key
		record.Initialized = true
		ctx.Log("first vote binds %s", authority.Key)
	}
	if err := ctx.Require(record.Authority == authority.Key, ledger.AuthorityMismatch, "attempted to vote with an invalid authority"); err != nil {
		return err
	}

	count := &record.ApproveCount
	if kind == Reject {
		count = &record.RejectCount
	}
	if *count == math.MaxUint64 {
		return ledger.Errorf(ledger.ArithmeticOverflow, "%s count", kind)
	}
	*count++

	copy(recordAI.Data, record.Marshal())
	ctx.Log("global %s count: %d", kind, *count)
	return nil
}
