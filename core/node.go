// Package core wires the ledger, the counter and tracker programs and the
// query API into a node.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/tally/api"
	"github.com/axiomesh/tally/core/counter"
	"github.com/axiomesh/tally/core/tracker"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/repo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	openAttempts uint = 5
	openBackoff       = 200 * time.Millisecond
)

// OpenRuntime opens the ledger database of config and registers the counter
// and tracker programs on it. The database is exclusively locked by its
// owner, so opening is retried with a Fibonacci backoff.
func OpenRuntime(config *repo.Config, logger logrus.FieldLogger) (*ledger.Runtime, *repo.ProgramSettings, error) {
	programs, err := config.Programs.Parse()
	if err != nil {
		return nil, nil, err
	}

	var db storage.Storage
	action := func(attempt uint) error {
		db, err = leveldb.New(config.LedgerPath())
		if err != nil {
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"path":    config.LedgerPath(),
			}).WithError(err).Warn("open ledger failed")
		}
		return err
	}
	if err := retry.Retry(action, strategy.Limit(openAttempts), strategy.Backoff(backoff.Fibonacci(openBackoff))); err != nil {
		return nil, nil, errors.Wrap(err, "failed to open ledger")
	}

	rt := ledger.NewRuntime(db,
		ledger.WithRent(config.Ledger.Rent()),
		ledger.WithLogger(logger.WithField("module", "ledger")),
	)
	if err := rt.Register(counter.New(programs.CounterID, programs.Binding)); err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	if err := rt.Register(tracker.New(programs.TrackerID, programs.Tracker)); err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	return rt, programs, nil
}

type Node struct {
	Ctx     context.Context
	Logger  *logrus.Logger
	Config  *repo.Config
	Runtime *ledger.Runtime
	Client  *Client

	cancel context.CancelFunc
	api    *api.Server
	wg     sync.WaitGroup
	err    error
}

func NewNode(ctx context.Context, config *repo.Config) (*Node, error) {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(config.Log.Level))

	if err := config.Check(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	rt, programs, err := OpenRuntime(config, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Node{
		Ctx:     ctx,
		Logger:  logger,
		Config:  config,
		Runtime: rt,
		Client:  NewClient(rt, programs),
		cancel:  cancel,
		api: api.NewServer(rt, api.APIConfig{
			APIEndpoint: config.API.Listen,
			CounterID:   programs.CounterID,
			TrackerID:   programs.TrackerID,
		}, logger.WithField("module", "api")),
	}, nil
}

// Start serves the query API in the background.
func (n *Node) Start() error {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.api.Serve(n.Ctx); err != nil {
			n.Logger.WithError(err).Error("api server exited")
			n.err = err
			n.cancel()
		}
	}()

	n.Logger.WithFields(logrus.Fields{
		"ledger":  n.Config.LedgerPath(),
		"slot":    n.Runtime.Slot(),
		"binding": n.Config.Programs.Binding,
		"policy":  n.Config.Programs.VotePolicy,
	}).Info("node started")
	return nil
}

// Done is closed when the node stops on its own or through Stop.
func (n *Node) Done() <-chan struct{} {
	return n.Ctx.Done()
}

func (n *Node) Stop() error {
	n.cancel()
	n.wg.Wait()
	if err := n.Runtime.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	n.Logger.Info("node stopped")
	return n.err
}
