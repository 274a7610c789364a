// Package ledgertest provides helpers for tests that run programs on a real
// runtime backed by a temporary leveldb.
package ledgertest

import (
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const DefaultAirdrop = 1_000_000_000

var nonce atomic.Uint64

func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// NewRuntime opens a runtime on a fresh leveldb that is closed when the test
// ends.
func NewRuntime(t testing.TB, opts ...ledger.Option) *ledger.Runtime {
	t.Helper()

	db, err := leveldb.New(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)

	opts = append([]ledger.Option{ledger.WithLogger(NewLogger())}, opts...)
	rt := ledger.NewRuntime(db, opts...)
	t.Cleanup(func() {
		_ = rt.Close()
	})
	return rt
}

// NewFundedKeypair generates a keypair and airdrops DefaultAirdrop lamports to it.
func NewFundedKeypair(t testing.TB, rt *ledger.Runtime) *types.Keypair {
	t.Helper()

	k, err := types.NewKeypair()
	require.NoError(t, err)
	require.NoError(t, rt.Airdrop(k.Address(), DefaultAirdrop))
	return k
}

func NewKeypair(t testing.TB) *types.Keypair {
	t.Helper()

	k, err := types.NewKeypair()
	require.NoError(t, err)
	return k
}

// Execute signs ixs with signers under a fresh nonce and runs them.
func Execute(rt *ledger.Runtime, signers []*types.Keypair, ixs ...ledger.Instruction) (*ledger.Receipt, error) {
	tx := ledger.NewTransaction(nonce.Add(1), ixs...)
	tx.Sign(signers...)
	return rt.Execute(tx)
}

// Account fetches addr and fails the test if it does not exist.
func Account(t testing.TB, rt *ledger.Runtime, addr types.Address) *ledger.Account {
	t.Helper()

	acc, err := rt.Account(addr)
	require.NoError(t, err)
	require.NotNil(t, acc, "account %s does not exist", addr)
	return acc
}
