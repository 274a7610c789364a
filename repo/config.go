package repo

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/axiomesh/tally/core/counter"
	"github.com/axiomesh/tally/core/tracker"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/types"
)

type Config struct {
	RepoRoot string   `mapstructure:"-" toml:"-"`
	Log      Log      `mapstructure:"log" toml:"log"`
	Ledger   Ledger   `mapstructure:"ledger" toml:"ledger"`
	Programs Programs `mapstructure:"programs" toml:"programs"`
	API      API      `mapstructure:"api" toml:"api"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

type Ledger struct {
	// directory of the account database, relative to the repo root
	DataDir             string `mapstructure:"data_dir" toml:"data_dir"`
	LamportsPerByteYear uint64 `mapstructure:"lamports_per_byte_year" toml:"lamports_per_byte_year"`
	ExemptionYears      uint64 `mapstructure:"exemption_years" toml:"exemption_years"`
}

type Programs struct {
	CounterID string `mapstructure:"counter_id" toml:"counter_id"`
	TrackerID string `mapstructure:"tracker_id" toml:"tracker_id"`
	// explicit or first-vote
	Binding string `mapstructure:"binding" toml:"binding"`
	// repeatable or one-shot
	VotePolicy string `mapstructure:"vote_policy" toml:"vote_policy"`
	// reject votes forwarded to any counter program but counter_id
	PinCounter bool `mapstructure:"pin_counter" toml:"pin_counter"`
}

type API struct {
	Listen string `mapstructure:"listen" toml:"listen"`
}

var (
	DefaultCounterID = types.BytesToAddress([]byte("tally/counter"))
	DefaultTrackerID = types.BytesToAddress([]byte("tally/tracker"))
)

func DefaultConfig(repoRoot string) *Config {
	rent := ledger.DefaultRent()
	return &Config{
		RepoRoot: repoRoot,
		Log: Log{
			Level:        "info",
			Filename:     "tally.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
		Ledger: Ledger{
			DataDir:             "ledger",
			LamportsPerByteYear: rent.LamportsPerByteYear,
			ExemptionYears:      rent.ExemptionYears,
		},
		Programs: Programs{
			CounterID:  DefaultCounterID.Hex(),
			TrackerID:  DefaultTrackerID.Hex(),
			Binding:    counter.ExplicitBinding.String(),
			VotePolicy: tracker.Repeatable.String(),
			PinCounter: true,
		},
		API: API{
			Listen: "127.0.0.1:8890",
		},
	}
}

func (l Ledger) Rent() ledger.Rent {
	return ledger.Rent{
		LamportsPerByteYear: l.LamportsPerByteYear,
		ExemptionYears:      l.ExemptionYears,
	}
}

// ProgramSettings is the parsed form of Programs.
type ProgramSettings struct {
	CounterID types.Address
	TrackerID types.Address
	Binding   counter.Binding
	Tracker   tracker.Config
}

func (p Programs) Parse() (*ProgramSettings, error) {
	counterID, err := types.HexToAddress(p.CounterID)
	if err != nil {
		return nil, fmt.Errorf("programs.counter_id: %w", err)
	}
	trackerID, err := types.HexToAddress(p.TrackerID)
	if err != nil {
		return nil, fmt.Errorf("programs.tracker_id: %w", err)
	}
	if counterID == trackerID {
		return nil, fmt.Errorf("programs.counter_id and programs.tracker_id are both %s", counterID)
	}
	binding, err := counter.ParseBinding(p.Binding)
	if err != nil {
		return nil, fmt.Errorf("programs.binding: %w", err)
	}
	policy, err := tracker.ParsePolicy(p.VotePolicy)
	if err != nil {
		return nil, fmt.Errorf("programs.vote_policy: %w", err)
	}

	s := &ProgramSettings{
		CounterID: counterID,
		TrackerID: trackerID,
		Binding:   binding,
		Tracker:   tracker.Config{Policy: policy},
	}
	if p.PinCounter {
		s.Tracker.CounterProgram = counterID
	}
	return s, nil
}

// Check validates the settings a node needs before it opens the ledger.
func (c *Config) Check() error {
	if _, err := c.Programs.Parse(); err != nil {
		return err
	}
	if c.Ledger.DataDir == "" {
		return fmt.Errorf("ledger.data_dir is empty")
	}
	if c.API.Listen == "" {
		return fmt.Errorf("api.listen is empty")
	}
	return nil
}

// LedgerPath is the directory of the account database.
func (c *Config) LedgerPath() string {
	if filepath.IsAbs(c.Ledger.DataDir) {
		return c.Ledger.DataDir
	}
	return filepath.Join(c.RepoRoot, c.Ledger.DataDir)
}
