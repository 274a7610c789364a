package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/axiomesh/tally/types"
)

var (
	// SystemProgramID owns every account that has not been assigned to a
	// program, including accounts that do not exist yet.
	SystemProgramID = types.Address{}

	// NativeLoaderID owns the virtual accounts that stand for registered
	// programs.
	NativeLoaderID = types.BytesToAddress([]byte("NativeLoader1111"))
)

const accountHeaderLen = types.AddressLength + 8

type Account struct {
	Owner      types.Address
	Lamports   uint64
	Data       []byte
	Executable bool
}

// InUse reports whether the account holds anything. Account creation only
// targets accounts that are not in use.
func (a *Account) InUse() bool {
	return a.Lamports > 0 || len(a.Data) > 0 || a.Owner != SystemProgramID
}

func (a *Account) Clone() *Account {
	return &Account{
		Owner:      a.Owner,
		Lamports:   a.Lamports,
		Data:       append([]byte(nil), a.Data...),
		Executable: a.Executable,
	}
}

func encodeAccount(a *Account) []byte {
	buf := make([]byte, accountHeaderLen+len(a.Data))
	copy(buf, a.Owner[:])
	binary.LittleEndian.PutUint64(buf[types.AddressLength:], a.Lamports)
	copy(buf[accountHeaderLen:], a.Data)
	return buf
}

func decodeAccount(raw []byte) (*Account, error) {
	if len(raw) < accountHeaderLen {
		return nil, fmt.Errorf("account encoding has %d bytes, want at least %d", len(raw), accountHeaderLen)
	}
	return &Account{
		Owner:    types.BytesToAddress(raw[:types.AddressLength]),
		Lamports: binary.LittleEndian.Uint64(raw[types.AddressLength:accountHeaderLen]),
		Data:     append([]byte(nil), raw[accountHeaderLen:]...),
	}, nil
}

// AccountInfo is a program's view of one account of the instruction it is
// processing. Programs mutate the embedded Account in place; the runtime
// checks the changes when the instruction returns.
type AccountInfo struct {
	Key        types.Address
	IsSigner   bool
	IsWritable bool
	*Account
}

// CheckAccounts fails with NotEnoughAccountKeys when fewer than n accounts
// were supplied.
func CheckAccounts(accounts []*AccountInfo, n int) error {
	if len(accounts) < n {
		return Errorf(NotEnoughAccountKeys, "got %d accounts, want %d", len(accounts), n)
	}
	return nil
}
