package ledger_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/ledger/ledgertest"
	"github.com/axiomesh/tally/pda"
	"github.com/axiomesh/tally/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcProgram struct {
	id types.Address
	fn func(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error
}

func (p *funcProgram) ID() types.Address { return p.id }

func (p *funcProgram) Process(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	return p.fn(ctx, accounts, data)
}

func programID(name string) types.Address {
	return types.BytesToAddress([]byte(name))
}

func balance(t *testing.T, rt *ledger.Runtime, addr types.Address) uint64 {
	acc, err := rt.Account(addr)
	require.NoError(t, err)
	if acc == nil {
		return 0
	}
	return acc.Lamports
}

func TestTransfer(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	alice := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewKeypair(t)

	receipt, err := ledgertest.Execute(rt, []*types.Keypair{alice},
		ledger.TransferInstruction(alice.Address(), bob.Address(), 400))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Slot)

	assert.Equal(t, uint64(ledgertest.DefaultAirdrop-400), balance(t, rt, alice.Address()))
	assert.Equal(t, uint64(400), balance(t, rt, bob.Address()))

	stored, err := rt.Receipt(receipt.TxHash)
	require.NoError(t, err)
	assert.Equal(t, receipt.Slot, stored.Slot)
}

func TestTransferInsufficientFunds(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	alice := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewKeypair(t)

	_, err := ledgertest.Execute(rt, []*types.Keypair{alice},
		ledger.TransferInstruction(alice.Address(), bob.Address(), ledgertest.DefaultAirdrop+1))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, ledger.InsufficientFunds, ledger.KindOf(err))
}

func TestSignatures(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	alice := ledgertest.NewFundedKeypair(t, rt)
	mallory := ledgertest.NewKeypair(t)

	ix := ledger.TransferInstruction(alice.Address(), mallory.Address(), 10)

	t.Run("unsigned", func(t *testing.T) {
		_, err := ledgertest.Execute(rt, nil, ix)
		assert.ErrorIs(t, err, ledger.ErrMissingAuthorization)
	})

	t.Run("wrong signer", func(t *testing.T) {
		_, err := ledgertest.Execute(rt, []*types.Keypair{mallory}, ix)
		assert.ErrorIs(t, err, ledger.ErrMissingAuthorization)
	})

	t.Run("tampered", func(t *testing.T) {
		tx := ledger.NewTransaction(42, ix).Sign(alice)
		tx.Instructions[0] = ledger.TransferInstruction(alice.Address(), mallory.Address(), 10_000)
		_, err := rt.Execute(tx)
		assert.ErrorIs(t, err, ledger.ErrInvalidSignature)
	})

	assert.Equal(t, uint64(0), balance(t, rt, mallory.Address()))
}

func TestReplayRejected(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	alice := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewKeypair(t)

	tx := ledger.NewTransaction(7, ledger.TransferInstruction(alice.Address(), bob.Address(), 5)).Sign(alice)
	_, err := rt.Execute(tx)
	require.NoError(t, err)

	_, err = rt.Execute(tx)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assert.Equal(t, uint64(5), balance(t, rt, bob.Address()))
}

func TestTransactionIsAtomic(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	alice := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewKeypair(t)

	_, err := ledgertest.Execute(rt, []*types.Keypair{alice},
		ledger.TransferInstruction(alice.Address(), bob.Address(), 5),
		ledger.TransferInstruction(alice.Address(), bob.Address(), ledgertest.DefaultAirdrop),
	)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "instruction 1")

	assert.Equal(t, uint64(ledgertest.DefaultAirdrop), balance(t, rt, alice.Address()))
	assert.Equal(t, uint64(0), balance(t, rt, bob.Address()))
	assert.Equal(t, uint64(0), rt.Slot())
}

func TestCreateAccount(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	payer := ledgertest.NewFundedKeypair(t, rt)
	target := ledgertest.NewKeypair(t)
	owner := programID("owner")
	rent := rt.Rent().MinimumBalance(16)

	ix := ledger.CreateAccountInstruction(payer.Address(), target.Address(), rent, 16, owner)
	_, err := ledgertest.Execute(rt, []*types.Keypair{payer, target}, ix)
	require.NoError(t, err)

	acc := ledgertest.Account(t, rt, target.Address())
	assert.Equal(t, owner, acc.Owner)
	assert.Equal(t, rent, acc.Lamports)
	assert.Equal(t, make([]byte, 16), acc.Data)

	_, err = ledgertest.Execute(rt, []*types.Keypair{payer, target}, ix)
	assert.ErrorIs(t, err, ledger.ErrAccountAlreadyInUse)

	other := ledgertest.NewKeypair(t)
	_, err = ledgertest.Execute(rt, []*types.Keypair{payer, other},
		ledger.CreateAccountInstruction(payer.Address(), other.Address(), rent-1, 16, owner))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFundsForRent)
}

func TestMalformedSystemInstruction(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	payer := ledgertest.NewFundedKeypair(t, rt)

	_, err := ledgertest.Execute(rt, []*types.Keypair{payer}, ledger.Instruction{
		ProgramID: ledger.SystemProgramID,
		Accounts:  []ledger.AccountMeta{ledger.WritableMeta(payer.Address(), true)},
		Data:      []byte{9, 0, 0, 0},
	})
	assert.ErrorIs(t, err, ledger.ErrMalformedInstruction)
}

func TestUnknownProgram(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	payer := ledgertest.NewFundedKeypair(t, rt)

	_, err := ledgertest.Execute(rt, []*types.Keypair{payer}, ledger.Instruction{
		ProgramID: programID("nobody"),
		Accounts:  []ledger.AccountMeta{ledger.WritableMeta(payer.Address(), true)},
	})
	assert.ErrorIs(t, err, ledger.ErrUnknownProgram)
}

func TestRegisterTwice(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	p := &funcProgram{id: programID("dup"), fn: func(*ledger.InvokeContext, []*ledger.AccountInfo, []byte) error { return nil }}

	require.NoError(t, rt.Register(p))
	assert.Error(t, rt.Register(p))
	assert.Error(t, rt.Register(&ledger.SystemProgram{}))
}

func TestOwnershipRules(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	alice := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewFundedKeypair(t, rt)

	thief := &funcProgram{
		id: programID("thief"),
		fn: func(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
			switch data[0] {
			case 0:
				accounts[0].Lamports -= 10
				accounts[1].Lamports += 10
			case 1:
				accounts[0].Data = []byte{1}
			case 2:
				accounts[0].Owner = ctx.ProgramID()
			case 3:
				accounts[1].Lamports += 10
			}
			return nil
		},
	}
	require.NoError(t, rt.Register(thief))

	run := func(op byte, metas ...ledger.AccountMeta) error {
		_, err := ledgertest.Execute(rt, []*types.Keypair{alice}, ledger.Instruction{
			ProgramID: thief.id,
			Accounts:  metas,
			Data:      []byte{op},
		})
		return err
	}

	both := []ledger.AccountMeta{ledger.WritableMeta(alice.Address(), true), ledger.WritableMeta(bob.Address(), false)}
	assert.ErrorIs(t, run(0, both...), ledger.ErrExternalLamportSpend)
	assert.ErrorIs(t, run(1, both...), ledger.ErrExternalAccountModified)
	assert.ErrorIs(t, run(2, both...), ledger.ErrExternalAccountModified)
	assert.ErrorIs(t, run(3, both...), ledger.ErrUnbalancedInstruction)

	readonly := []ledger.AccountMeta{ledger.ReadonlyMeta(alice.Address(), true), ledger.WritableMeta(bob.Address(), false)}
	assert.ErrorIs(t, run(1, readonly...), ledger.ErrReadonlyModified)

	assert.Equal(t, uint64(ledgertest.DefaultAirdrop), balance(t, rt, alice.Address()))
	assert.Equal(t, uint64(ledgertest.DefaultAirdrop), balance(t, rt, bob.Address()))
}

func TestInvokeSigned(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	payer := ledgertest.NewFundedKeypair(t, rt)
	victim := ledgertest.NewFundedKeypair(t, rt)

	vaultProgram := programID("vault")
	vault, bump, err := pda.FindProgramAddress([][]byte{[]byte("vault")}, vaultProgram)
	require.NoError(t, err)
	require.NoError(t, rt.Airdrop(vault, 1000))

	var caps []pda.Capability
	var target types.Address
	p := &funcProgram{
		id: vaultProgram,
		fn: func(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
			return ctx.InvokeSigned(ledger.TransferInstruction(target, payer.Address(), 100), caps...)
		},
	}
	require.NoError(t, rt.Register(p))

	run := func(from types.Address) error {
		target = from
		_, err := ledgertest.Execute(rt, []*types.Keypair{payer}, ledger.Instruction{
			ProgramID: vaultProgram,
			Accounts: []ledger.AccountMeta{
				ledger.WritableMeta(from, false),
				ledger.WritableMeta(payer.Address(), true),
				ledger.ReadonlyMeta(ledger.SystemProgramID, false),
			},
		})
		return err
	}

	t.Run("derived signer", func(t *testing.T) {
		caps = []pda.Capability{pda.NewCapability(vaultProgram, bump, []byte("vault"))}
		require.NoError(t, run(vault))
		assert.Equal(t, uint64(900), balance(t, rt, vault))
	})

	t.Run("no capability", func(t *testing.T) {
		caps = nil
		assert.ErrorIs(t, run(vault), ledger.ErrPrivilegeEscalation)
	})

	t.Run("capability of another program", func(t *testing.T) {
		caps = []pda.Capability{pda.NewCapability(programID("other"), bump, []byte("vault"))}
		assert.ErrorIs(t, run(vault), ledger.ErrPrivilegeEscalation)
	})

	t.Run("capability does not cover keyed account", func(t *testing.T) {
		caps = []pda.Capability{pda.NewCapability(vaultProgram, bump, []byte("vault"))}
		assert.ErrorIs(t, run(victim.Address()), ledger.ErrPrivilegeEscalation)
		assert.Equal(t, uint64(ledgertest.DefaultAirdrop), balance(t, rt, victim.Address()))
	})
}

func TestInvokeRequiresAccounts(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	payer := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewKeypair(t)

	p := &funcProgram{
		id: programID("forwarder"),
		fn: func(ctx *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
			return ctx.Invoke(ledger.TransferInstruction(payer.Address(), bob.Address(), 1))
		},
	}
	require.NoError(t, rt.Register(p))

	// system program account missing
	_, err := ledgertest.Execute(rt, []*types.Keypair{payer}, ledger.Instruction{
		ProgramID: p.id,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(payer.Address(), true),
			ledger.WritableMeta(bob.Address(), false),
		},
	})
	assert.ErrorIs(t, err, ledger.ErrMissingAccount)

	// recipient is read-only in the caller
	_, err = ledgertest.Execute(rt, []*types.Keypair{payer}, ledger.Instruction{
		ProgramID: p.id,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(payer.Address(), true),
			ledger.ReadonlyMeta(bob.Address(), false),
			ledger.ReadonlyMeta(ledger.SystemProgramID, false),
		},
	})
	assert.ErrorIs(t, err, ledger.ErrPrivilegeEscalation)

	_, err = ledgertest.Execute(rt, []*types.Keypair{payer}, ledger.Instruction{
		ProgramID: p.id,
		Accounts: []ledger.AccountMeta{
			ledger.WritableMeta(payer.Address(), true),
			ledger.WritableMeta(bob.Address(), false),
			ledger.ReadonlyMeta(ledger.SystemProgramID, false),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), balance(t, rt, bob.Address()))
}

func TestCallDepthAndReentrancy(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	payer := ledgertest.NewFundedKeypair(t, rt)

	a, b := programID("ping"), programID("pong")
	metas := []ledger.AccountMeta{
		ledger.ReadonlyMeta(payer.Address(), true),
		ledger.ReadonlyMeta(a, false),
		ledger.ReadonlyMeta(b, false),
	}
	call := func(target types.Address) ledger.Instruction {
		return ledger.Instruction{ProgramID: target, Accounts: metas}
	}

	ping := &funcProgram{id: a, fn: func(ctx *ledger.InvokeContext, _ []*ledger.AccountInfo, _ []byte) error {
		return ctx.Invoke(call(b))
	}}
	calls, limit := 0, 0
	pong := &funcProgram{id: b, fn: func(ctx *ledger.InvokeContext, _ []*ledger.AccountInfo, _ []byte) error {
		calls++
		if calls < limit {
			return ctx.Invoke(call(b))
		}
		return nil
	}}
	require.NoError(t, rt.Register(ping))
	require.NoError(t, rt.Register(pong))

	// direct self calls up to the depth limit
	calls, limit = 0, ledger.MaxInvokeDepth
	_, err := ledgertest.Execute(rt, []*types.Keypair{payer}, call(b))
	require.NoError(t, err)
	assert.Equal(t, ledger.MaxInvokeDepth, calls)

	calls, limit = 0, ledger.MaxInvokeDepth+1
	_, err = ledgertest.Execute(rt, []*types.Keypair{payer}, call(b))
	assert.ErrorIs(t, err, ledger.ErrCallDepthExceeded)

	// ping -> pong -> pong
	calls, limit = 0, 2
	_, err = ledgertest.Execute(rt, []*types.Keypair{payer}, call(a))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	pong.fn = func(ctx *ledger.InvokeContext, _ []*ledger.AccountInfo, _ []byte) error {
		return ctx.Invoke(call(a))
	}
	_, err = ledgertest.Execute(rt, []*types.Keypair{payer}, call(a))
	assert.ErrorIs(t, err, ledger.ErrReentrancyNotAllowed)
}

func TestConcurrentTransfersSerialize(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	sink := ledgertest.NewKeypair(t)

	const senders = 16
	keys := make([]*types.Keypair, senders)
	for i := range keys {
		keys[i] = ledgertest.NewFundedKeypair(t, rt)
	}

	var wg sync.WaitGroup
	errs := make(chan error, senders*5)
	for _, k := range keys {
		wg.Add(1)
		go func(k *types.Keypair) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := ledgertest.Execute(rt, []*types.Keypair{k}, ledger.TransferInstruction(k.Address(), sink.Address(), 1))
				errs <- err
			}
		}(k)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(senders*5), balance(t, rt, sink.Address()))
	assert.Equal(t, uint64(senders*5), rt.Slot())
}

func TestStatePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	db, err := leveldb.New(dir)
	require.NoError(t, err)

	rt := ledger.NewRuntime(db, ledger.WithLogger(ledgertest.NewLogger()))
	alice := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewKeypair(t)
	receipt, err := ledgertest.Execute(rt, []*types.Keypair{alice}, ledger.TransferInstruction(alice.Address(), bob.Address(), 3))
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	db, err = leveldb.New(dir)
	require.NoError(t, err)
	rt = ledger.NewRuntime(db, ledger.WithLogger(ledgertest.NewLogger()))
	defer rt.Close()

	assert.Equal(t, uint64(3), balance(t, rt, bob.Address()))
	assert.Equal(t, receipt.Slot, rt.Slot())

	stored, err := rt.Receipt(receipt.TxHash)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestEmptyAccountsAreDeleted(t *testing.T) {
	rt := ledgertest.NewRuntime(t)
	alice := ledgertest.NewFundedKeypair(t, rt)
	bob := ledgertest.NewKeypair(t)

	_, err := ledgertest.Execute(rt, []*types.Keypair{alice},
		ledger.TransferInstruction(alice.Address(), bob.Address(), ledgertest.DefaultAirdrop))
	require.NoError(t, err)

	acc, err := rt.Account(alice.Address())
	require.NoError(t, err)
	assert.Nil(t, acc)
}
