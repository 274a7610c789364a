package ledger

import (
	"encoding/binary"
	"math/bits"

	"github.com/axiomesh/tally/types"
)

// MaxPermittedDataLength caps the space of a created account.
const MaxPermittedDataLength = 10 * 1024 * 1024

const (
	systemCreateAccount uint32 = 0
	systemTransfer      uint32 = 2
)

// SystemProgram creates accounts and moves lamports between system-owned
// accounts.
type SystemProgram struct{}

func (p *SystemProgram) ID() types.Address {
	return SystemProgramID
}

// CreateAccountInstruction funds newAccount from payer with lamports, sizes it
// to space zero bytes and assigns it to owner. Both payer and newAccount must
// sign.
func CreateAccountInstruction(payer, newAccount types.Address, lamports, space uint64, owner types.Address) Instruction {
	data := binary.LittleEndian.AppendUint32(nil, systemCreateAccount)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			WritableMeta(payer, true),
			WritableMeta(newAccount, true),
		},
		Data: data,
	}
}

func TransferInstruction(from, to types.Address, lamports uint64) Instruction {
	data := binary.LittleEndian.AppendUint32(nil, systemTransfer)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			WritableMeta(from, true),
			WritableMeta(to, false),
		},
		Data: data,
	}
}

func (p *SystemProgram) Process(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error {
	if len(data) < 4 {
		return NewError(MalformedInstruction, "system instruction too short")
	}
	tag := binary.LittleEndian.Uint32(data)
	data = data[4:]

	switch tag {
	case systemCreateAccount:
		if len(data) != 8+8+types.AddressLength {
			return NewError(MalformedInstruction, "create account payload")
		}
		lamports := binary.LittleEndian.Uint64(data)
		space := binary.LittleEndian.Uint64(data[8:])
		owner := types.BytesToAddress(data[16:])
		return p.createAccount(ctx, accounts, lamports, space, owner)
	case systemTransfer:
		if len(data) != 8 {
			return NewError(MalformedInstruction, "transfer payload")
		}
		return p.transfer(ctx, accounts, binary.LittleEndian.Uint64(data))
	default:
		return Errorf(MalformedInstruction, "unknown system instruction %d", tag)
	}
}

func (p *SystemProgram) createAccount(ctx *InvokeContext, accounts []*AccountInfo, lamports, space uint64, owner types.Address) error {
	if err := CheckAccounts(accounts, 2); err != nil {
		return err
	}
	payer, target := accounts[0], accounts[1]

	if err := ctx.Require(payer.IsSigner, MissingAuthorization, "payer must sign"); err != nil {
		return err
	}
	if err := ctx.Require(target.IsSigner, MissingAuthorization, "new account must sign"); err != nil {
		return err
	}
	if target.InUse() {
		ctx.Log("create account: %s already in use", target.Key)
		return Errorf(AccountAlreadyInUse, "%s", target.Key)
	}
	if space > MaxPermittedDataLength {
		return Errorf(MalformedInstruction, "space %d exceeds %d", space, MaxPermittedDataLength)
	}
	if minimum := ctx.Rent().MinimumBalance(space); lamports < minimum {
		return Errorf(InsufficientFundsForRent, "%d lamports, rent-exempt minimum is %d", lamports, minimum)
	}
	if err := debit(payer, lamports); err != nil {
		return err
	}

	target.Lamports = lamports
	target.Data = make([]byte, space)
	target.Owner = owner
	ctx.Log("created %s with %d bytes for %s", target.Key, space, owner)
	return nil
}

func (p *SystemProgram) transfer(ctx *InvokeContext, accounts []*AccountInfo, lamports uint64) error {
	if err := CheckAccounts(accounts, 2); err != nil {
		return err
	}
	from, to := accounts[0], accounts[1]

	if err := ctx.Require(from.IsSigner, MissingAuthorization, "sender must sign"); err != nil {
		return err
	}
	if from.Key == to.Key {
		return nil
	}
	if err := debit(from, lamports); err != nil {
		return err
	}
	sum, carry := bits.Add64(to.Lamports, lamports, 0)
	if carry != 0 {
		return Errorf(ArithmeticOverflow, "balance of %s", to.Key)
	}
	to.Lamports = sum
	return nil
}

func debit(from *AccountInfo, lamports uint64) error {
	if from.Owner != SystemProgramID || len(from.Data) > 0 {
		return Errorf(IncorrectProgramID, "%s is not a system account", from.Key)
	}
	if from.Lamports < lamports {
		return Errorf(InsufficientFunds, "%s holds %d, needs %d", from.Key, from.Lamports, lamports)
	}
	from.Lamports -= lamports
	return nil
}
