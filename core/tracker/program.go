// Package tracker keeps one voting record per (user, proposal) and forwards
// each vote to the counter program, signing as the delegate address derived
// from the counter record. Only this program can produce that signature.
package tracker

import (
	"fmt"
	"math"

	"github.com/axiomesh/tally/core/counter"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/pda"
	"github.com/axiomesh/tally/types"
)

// Policy decides how many votes a record may cast.
type Policy uint8

const (
	// Repeatable accepts any number of votes per record
	Repeatable Policy = iota

	// OneShot accepts a single vote per record
	OneShot
)

func (p Policy) String() string {
	switch p {
	case Repeatable:
		return "repeatable"
	case OneShot:
		return "one-shot"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "repeatable", "":
		return Repeatable, nil
	case "one-shot":
		return OneShot, nil
	default:
		return 0, fmt.Errorf("unknown vote policy %q", s)
	}
}

type Config struct {
	// CounterProgram, when set, is the only program votes are forwarded to
	CounterProgram types.Address
	Policy         Policy
}

var _ ledger.Program = (*Program)(nil)

type Program struct {
	id     types.Address
	config Config
}

func New(id types.Address, config Config) *Program {
	return &Program{
		id:     id,
		config: config,
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
		return p.initialize(ctx, accounts)
	case Bind:
		return p.bind(ctx, accounts, ix.ProposalID)
	case Approve:
		return p.vote(ctx, accounts, counter.Approve)
	default:
		return p.vote(ctx, accounts, counter.Reject)
	}
}

// initialize accounts: tracker record, user, delegate, counter record, system
// program.
func (p *Program) initialize(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo) error {
	if err := ledger.CheckAccounts(accounts, 5); err != nil {
		return err
	}
	recordAI, user, delegate, counterAI, system := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	if err := ctx.Require(user.IsSigner, ledger.MissingAuthorization, "user must sign"); err != nil {
		return err
	}

	recordAddr, recordBump, err := FindRecord(p.id, user.Key, counterAI.Key)
	if err != nil {
		return ledger.FromDerivationError(err)
	}
	if err := ctx.Require(recordAddr == recordAI.Key, ledger.InvalidDerivation, "invalid seeds for tracker record"); err != nil {
		return err
	}
	delegateBump, err := p.checkDelegate(ctx, counterAI, delegate)
	if err != nil {
		return err
	}
	if err := ctx.Require(system.Key == ledger.SystemProgramID, ledger.IncorrectProgramID, "expected the system program"); err != nil {
		return err
	}

	create := ledger.CreateAccountInstruction(user.Key, recordAI.Key, ctx.Rent().MinimumBalance(RecordSize), RecordSize, p.id)
	if err := ctx.InvokeSigned(create, recordCapability(p.id, user.Key, counterAI.Key, recordBump)); err != nil {
		return err
	}

	record := &Record{
		RecordBump:   recordBump,
		DelegateBump: delegateBump,
		ProposalRef:  counterAI.Key,
	}
	copy(recordAI.Data, record.Marshal())
	ctx.Log("tracker %s created for %s", recordAI.Key, user.Key)
	return nil
}

// bind accounts: counter record, delegate, counter program. The counter record
// signs, so only its creator can hand it to the delegate.
func (p *Program) bind(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, proposalID uint32) error {
	if err := ledger.CheckAccounts(accounts, 3); err != nil {
		return err
	}
	counterAI, delegate, counterProgram := accounts[0], accounts[1], accounts[2]

	if err := ctx.Require(counterAI.IsSigner, ledger.MissingAuthorization, "counter record must sign its binding"); err != nil {
		return err
	}
	delegateBump, err := p.checkDelegate(ctx, counterAI, delegate)
	if err != nil {
		return err
	}
	if err := p.checkCounterProgram(ctx, counterProgram); err != nil {
		return err
	}
	if err := ctx.Require(counterAI.Owner == counterProgram.Key, ledger.IncorrectProgramID, "counter record is not owned by the counter program"); err != nil {
		return err
	}
	existing, err := counter.UnmarshalRecord(counterAI.Data)
	if err != nil {
		return ledger.NewError(ledger.UninitializedRecord, err.Error())
	}
	if existing.Initialized {
		if err := ctx.Require(existing.Authority == delegate.Key, ledger.AuthorityMismatch, "counter is bound to another authority"); err != nil {
			return err
		}
		ctx.Log("counter already bound to %s", existing.Authority)
		return nil
	}

	ix := counter.NewInitializeInstruction(counterProgram.Key, counterAI.Key, delegate.Key, proposalID)
	return ctx.InvokeSigned(ix, delegateCapability(p.id, counterAI.Key, delegateBump))
}

func (p *Program) checkDelegate(ctx *ledger.InvokeContext, counterAI, delegate *ledger.AccountInfo) (uint8, error) {
	addr, bump, err := FindDelegate(p.id, counterAI.Key)
	if err != nil {
		return 0, ledger.FromDerivationError(err)
	}
	if err := ctx.Require(addr == delegate.Key, ledger.InvalidDerivation, "invalid seeds for delegate"); err != nil {
		return 0, err
	}
	return bump, nil
}

// vote accounts: tracker record, user, counter program, counter record,
// delegate.
func (p *Program) vote(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, kind counter.Kind) error {
	if err := ledger.CheckAccounts(accounts, 5); err != nil {
		return err
	}
	recordAI, user, counterProgram, counterAI, delegate := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	if err := ctx.Require(recordAI.Owner == p.id, ledger.UninitializedRecord, "tracker record is not initialized"); err != nil {
		return err
	}
	record, err := UnmarshalRecord(recordAI.Data)
	if err != nil {
		return ledger.NewError(ledger.UninitializedRecord, err.Error())
	}
	if err := ctx.Require(user.IsSigner, ledger.MissingAuthorization, "user must sign"); err != nil {
		return err
	}

	valid := pda.Verify(DelegateSeeds(counterAI.Key), record.DelegateBump, p.id, delegate.Key)
	if err := ctx.Require(valid, ledger.InvalidDerivation, "invalid seeds for delegate"); err != nil {
		return err
	}
	valid = pda.Verify(RecordSeeds(user.Key, counterAI.Key), record.RecordBump, p.id, recordAI.Key)
	if err := ctx.Require(valid, ledger.InvalidDerivation, "invalid seeds for tracker record"); err != nil {
		return err
	}
	if err := ctx.Require(record.ProposalRef == counterAI.Key, ledger.InvalidDerivation, "tracker record votes into another counter"); err != nil {
		return err
	}
	if err := p.checkCounterProgram(ctx, counterProgram); err != nil {
		return err
	}
	if p.config.Policy == OneShot {
		if err := ctx.Require(!record.Voted(), ledger.AlreadyVoted, "user has already voted"); err != nil {
			return err
		}
	}

	cast := counter.NewVoteInstruction(counterProgram.Key, counterAI.Key, delegate.Key, kind)
	if err := ctx.InvokeSigned(cast, delegateCapability(p.id, counterAI.Key, record.DelegateBump)); err != nil {
		return err
	}

	count := &record.ApproveCount
	if kind == counter.Reject {
		count = &record.RejectCount
	}
	if *count == math.MaxUint64 {
		return ledger.Errorf(ledger.ArithmeticOverflow, "%s count", kind)
	}
	*count++

	copy(recordAI.Data, record.Marshal())
	ctx.Log("user %s count: %d", kind, *count)
	return nil
}

func (p *Program) checkCounterProgram(ctx *ledger.InvokeContext, counterProgram *ledger.AccountInfo) error {
	if p.config.CounterProgram.IsZero() {
		return nil
	}
	return ctx.Require(counterProgram.Key == p.config.CounterProgram, ledger.IncorrectProgramID, "unexpected counter program")
}
