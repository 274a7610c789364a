package ledger

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/axiomesh/tally/pda"
	"github.com/axiomesh/tally/types"
	"github.com/sirupsen/logrus"
)

// MaxInvokeDepth bounds the program stack, top-level instruction included.
const MaxInvokeDepth = 4

// execution is the state shared by every instruction of one transaction.
type execution struct {
	runtime  *Runtime
	accounts map[types.Address]*Account
	logger   logrus.FieldLogger
	logs     []string
	stack    []types.Address
}

func (e *execution) run(ix Instruction, infos []*AccountInfo) error {
	program, ok := e.runtime.program(ix.ProgramID)
	if !ok {
		return Errorf(UnknownProgram, "%s", ix.ProgramID)
	}
	if len(e.stack) >= MaxInvokeDepth {
		return Errorf(CallDepthExceeded, "invoking %s at depth %d", ix.ProgramID, len(e.stack)+1)
	}
	// a program may call itself directly, but not through another program
	if len(e.stack) > 0 && e.stack[len(e.stack)-1] != ix.ProgramID {
		for _, id := range e.stack {
			if id == ix.ProgramID {
				return Errorf(ReentrancyNotAllowed, "%s", ix.ProgramID)
			}
		}
	}

	e.stack = append(e.stack, ix.ProgramID)
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()

	ctx := &InvokeContext{
		exec:      e,
		programID: ix.ProgramID,
		accounts:  infos,
		pre:       takeSnapshot(infos),
		logger: e.logger.WithFields(logrus.Fields{
			"program": ix.ProgramID.Hex(),
			"depth":   len(e.stack),
		}),
	}
	if err := program.Process(ctx, infos, ix.Data); err != nil {
		return err
	}
	return ctx.pre.verify(ix.ProgramID)
}

// InvokeContext is handed to a program for the duration of one instruction.
type InvokeContext struct {
	exec      *execution
	programID types.Address
	accounts  []*AccountInfo
	pre       snapshot
	logger    logrus.FieldLogger
}

func (c *InvokeContext) ProgramID() types.Address {
	return c.programID
}

func (c *InvokeContext) Rent() Rent {
	return c.exec.runtime.rent
}

func (c *InvokeContext) Logger() logrus.FieldLogger {
	return c.logger
}

// Log records a diagnostic line in the transaction receipt.
func (c *InvokeContext) Log(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.exec.logs = append(c.exec.logs, fmt.Sprintf("program %s: %s", c.programID.Hex(), line))
	c.logger.Debug(line)
}

// Require returns a ProgramError of kind when cond does not hold, logging msg.
func (c *InvokeContext) Require(cond bool, kind ErrorKind, msg string) error {
	if cond {
		return nil
	}
	c.Log(msg)
	return NewError(kind, msg)
}

func (c *InvokeContext) Invoke(ix Instruction) error {
	return c.InvokeSigned(ix)
}

// InvokeSigned runs ix as a nested instruction. Accounts keep the privileges
// they had in the calling instruction; in addition every address derived by
// one of caps is a signer, provided the capability belongs to the calling
// program.
func (c *InvokeContext) InvokeSigned(ix Instruction, caps ...pda.Capability) error {
	derived := make(map[types.Address]bool, len(caps))
	for _, capability := range caps {
		if capability.ProgramID != c.programID {
			return Errorf(PrivilegeEscalation, "capability of %s presented by %s", capability.ProgramID, c.programID)
		}
		addr, err := capability.Address()
		if err != nil {
			return FromDerivationError(err)
		}
		derived[addr] = true
	}

	if c.lookup(ix.ProgramID) == nil {
		return Errorf(MissingAccount, "program %s not passed to caller", ix.ProgramID)
	}

	infos := make([]*AccountInfo, 0, len(ix.Accounts))
	for _, m := range ix.Accounts {
		caller := c.lookup(m.Address)
		if caller == nil {
			return Errorf(MissingAccount, "%s not passed to caller", m.Address)
		}
		if m.IsWritable && !caller.IsWritable {
			return Errorf(PrivilegeEscalation, "%s is not writable in caller", m.Address)
		}
		if m.IsSigner && !caller.IsSigner && !derived[m.Address] {
			return Errorf(PrivilegeEscalation, "%s is not a signer in caller", m.Address)
		}
		infos = append(infos, &AccountInfo{
			Key:        m.Address,
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
			Account:    caller.Account,
		})
	}

	// the caller's own changes so far are checked before the callee sees them
	if err := c.pre.verify(c.programID); err != nil {
		return err
	}
	if err := c.exec.run(ix, infos); err != nil {
		return err
	}
	c.pre = takeSnapshot(c.accounts)
	return nil
}

func (c *InvokeContext) lookup(addr types.Address) *AccountInfo {
	for _, info := range c.accounts {
		if info.Key == addr {
			return info
		}
	}
	return nil
}

type preState struct {
	live     *Account
	owner    types.Address
	lamports uint64
	data     []byte
	writable bool
}

type snapshot map[types.Address]*preState

func takeSnapshot(infos []*AccountInfo) snapshot {
	s := make(snapshot, len(infos))
	for _, info := range infos {
		if p, ok := s[info.Key]; ok {
			p.writable = p.writable || info.IsWritable
			continue
		}
		s[info.Key] = &preState{
			live:     info.Account,
			owner:    info.Owner,
			lamports: info.Lamports,
			data:     append([]byte(nil), info.Data...),
			writable: info.IsWritable,
		}
	}
	return s
}

// verify checks the changes programID made since the snapshot was taken.
func (s snapshot) verify(programID types.Address) error {
	var before, after uint64
	var carry uint64
	for addr, p := range s {
		post := p.live
		dataChanged := !bytes.Equal(p.data, post.Data)
		ownerChanged := p.owner != post.Owner

		if !p.writable && (dataChanged || ownerChanged || p.lamports != post.Lamports) {
			return Errorf(ReadonlyModified, "%s", addr)
		}
		if (dataChanged || ownerChanged) && p.owner != programID {
			return Errorf(ExternalAccountModified, "%s owned by %s", addr, p.owner)
		}
		if post.Lamports < p.lamports && p.owner != programID {
			return Errorf(ExternalLamportSpend, "%s owned by %s", addr, p.owner)
		}

		var c1, c2 uint64
		before, c1 = bits.Add64(before, p.lamports, 0)
		after, c2 = bits.Add64(after, post.Lamports, 0)
		carry |= c1 | c2
	}
	if carry != 0 {
		return NewError(ArithmeticOverflow, "lamport total")
	}
	if before != after {
		return Errorf(UnbalancedInstruction, "lamports before %d, after %d", before, after)
	}
	return nil
}
