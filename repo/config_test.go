package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/axiomesh/tally/core/counter"
	"github.com/axiomesh/tally/core/tracker"
	"github.com/axiomesh/tally/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tally")

	r, err := Load(root)
	require.NoError(t, err)
	assert.True(t, Exist(filepath.Join(root, cfgFileName)))
	assert.Equal(t, DefaultConfig(root), r.Config)

	r2, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, r.Config, r2.Config)
	assert.Equal(t, filepath.Join(root, "ledger"), r2.Config.LedgerPath())
}

func TestEnvOverridesConfig(t *testing.T) {
	root := t.TempDir()
	_, err := Load(root)
	require.NoError(t, err)

	t.Setenv("TALLY_LOG_LEVEL", "debug")
	t.Setenv("TALLY_PROGRAMS_BINDING", "first-vote")

	r, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "debug", r.Config.Log.Level)
	assert.Equal(t, "first-vote", r.Config.Programs.Binding)

	require.NoError(t, r.Flush())
	raw, err := os.ReadFile(filepath.Join(root, cfgFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "first-vote")
}

func TestLoadRepoRootFromEnv(t *testing.T) {
	p, err := LoadRepoRootFromEnv("/explicit")
	require.NoError(t, err)
	assert.Equal(t, "/explicit", p)

	t.Setenv(rootPathEnvVar, "/from-env")
	p, err = LoadRepoRootFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, "/from-env", p)
}

func TestProgramsParse(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	require.NoError(t, cfg.Check())

	s, err := cfg.Programs.Parse()
	require.NoError(t, err)
	assert.Equal(t, DefaultCounterID, s.CounterID)
	assert.Equal(t, DefaultTrackerID, s.TrackerID)
	assert.Equal(t, counter.ExplicitBinding, s.Binding)
	assert.Equal(t, tracker.Repeatable, s.Tracker.Policy)
	assert.Equal(t, DefaultCounterID, s.Tracker.CounterProgram)

	cfg.Programs.PinCounter = false
	cfg.Programs.VotePolicy = "one-shot"
	s, err = cfg.Programs.Parse()
	require.NoError(t, err)
	assert.True(t, s.Tracker.CounterProgram.IsZero())
	assert.Equal(t, tracker.OneShot, s.Tracker.Policy)

	cfg.Programs.TrackerID = cfg.Programs.CounterID
	assert.Error(t, cfg.Check())

	cfg = DefaultConfig(t.TempDir())
	cfg.Programs.Binding = "lazy"
	assert.Error(t, cfg.Check())

	cfg = DefaultConfig(t.TempDir())
	cfg.Programs.CounterID = "0x1234"
	assert.Error(t, cfg.Check())
}

func TestRent(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Ledger.LamportsPerByteYear = 1
	cfg.Ledger.ExemptionYears = 1
	assert.Equal(t, uint64(128+50), cfg.Ledger.Rent().MinimumBalance(50))
}

func TestKeys(t *testing.T) {
	r := &Repo{Config: DefaultConfig(t.TempDir())}

	k, err := types.NewKeypair()
	require.NoError(t, err)
	require.NoError(t, r.SaveKey("alice", k))
	assert.Error(t, r.SaveKey("alice", k))

	loaded, err := r.LoadKey("alice")
	require.NoError(t, err)
	assert.Equal(t, k.Address(), loaded.Address())

	_, err = r.LoadKey("bob")
	assert.Error(t, err)
	assert.Error(t, r.SaveKey("../escape", k))
}
