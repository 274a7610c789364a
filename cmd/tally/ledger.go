package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/tally/core"
	"github.com/axiomesh/tally/core/tracker"
	"github.com/axiomesh/tally/ledger"
	"github.com/axiomesh/tally/repo"
	"github.com/axiomesh/tally/types"
	"github.com/urfave/cli/v2"
)

var (
	counterFlag = &cli.StringFlag{
		Name:     "counter",
		Usage:    "Counter record address or key name",
		Required: true,
	}
	userFlag = &cli.StringFlag{
		Name:     "user",
		Usage:    "Voter key name",
		Required: true,
	}
	proposalFlag = &cli.Uint64Flag{
		Name:  "proposal",
		Usage: "Proposal id recorded when the counter is bound",
	}
)

func proposalID(ctx *cli.Context) (uint32, error) {
	id := ctx.Uint64("proposal")
	if id > math.MaxUint32 {
		return 0, fmt.Errorf("proposal id %d exceeds %d", id, uint32(math.MaxUint32))
	}
	return uint32(id), nil
}

var airdropCMD = &cli.Command{
	Name:      "airdrop",
	Usage:     "Credit lamports to an account",
	ArgsUsage: "<key name or address>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "lamports",
			Value: 1_000_000_000,
		},
	},
	Action: func(ctx *cli.Context) error {
		return withClient(ctx, func(r *repo.Repo, c *core.Client) error {
			addr, err := resolveAddress(r, ctx.Args().First())
			if err != nil {
				return err
			}
			if err := c.Airdrop(addr, ctx.Uint64("lamports")); err != nil {
				return err
			}
			balance, err := c.Balance(addr)
			if err != nil {
				return err
			}
			fmt.Printf("%s balance: %d\n", addr, balance)
			return nil
		})
	},
}

var counterCMD = &cli.Command{
	Name:  "counter",
	Usage: "Counter record commands",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Allocate a counter record for tracker votes",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "payer", Usage: "Funding key name", Required: true},
				&cli.StringFlag{Name: "record", Usage: "Key name of the new record, generated if missing", Required: true},
				proposalFlag,
			},
			Action: func(ctx *cli.Context) error {
				return withClient(ctx, func(r *repo.Repo, c *core.Client) error {
					proposal, err := proposalID(ctx)
					if err != nil {
						return err
					}
					payer, err := r.LoadKey(ctx.String("payer"))
					if err != nil {
						return err
					}
					record, err := loadOrCreateKey(r, ctx.String("record"))
					if err != nil {
						return err
					}
					receipt, err := c.CreateCounter(payer, record, proposal)
					if err != nil {
						return err
					}
					fmt.Printf("counter record: %s\n", record.Address())
					printReceipt(receipt)
					return nil
				})
			},
		},
		{
			Name:  "init",
			Usage: "Allocate a counter record bound to an authority key",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "authority", Usage: "Authority key name, also funds the record", Required: true},
				&cli.StringFlag{Name: "record", Usage: "Key name of the new record, generated if missing", Required: true},
				proposalFlag,
			},
			Action: func(ctx *cli.Context) error {
				return withClient(ctx, func(r *repo.Repo, c *core.Client) error {
					proposal, err := proposalID(ctx)
					if err != nil {
						return err
					}
					authority, err := r.LoadKey(ctx.String("authority"))
					if err != nil {
						return err
					}
					record, err := loadOrCreateKey(r, ctx.String("record"))
					if err != nil {
						return err
					}
					receipt, err := c.InitCounter(authority, record, proposal)
					if err != nil {
						return err
					}
					fmt.Printf("counter record: %s\n", record.Address())
					printReceipt(receipt)
					return nil
				})
			},
		},
		{
			Name:  "show",
			Usage: "Print a counter record",
			Flags: []cli.Flag{counterFlag},
			Action: func(ctx *cli.Context) error {
				return withClient(ctx, func(r *repo.Repo, c *core.Client) error {
					counterAddr, err := resolveAddress(r, ctx.String("counter"))
					if err != nil {
						return err
					}
					record, err := c.Counter(counterAddr)
					if err != nil {
						return err
					}
					fmt.Printf("counter:     %s\n", counterAddr)
					fmt.Printf("initialized: %t\n", record.Initialized)
					fmt.Printf("authority:   %s\n", record.Authority)
					fmt.Printf("proposal:    %d\n", record.ProposalID)
					fmt.Printf("approve:     %d\n", record.ApproveCount)
					fmt.Printf("reject:      %d\n", record.RejectCount)
					return nil
				})
			},
		},
	},
}

var trackerCMD = &cli.Command{
	Name:  "tracker",
	Usage: "Tracker record commands",
	Subcommands: []*cli.Command{
		{
			Name:  "init",
			Usage: "Create the tracker record of a user for a counter",
			Flags: []cli.Flag{userFlag, counterFlag},
			Action: func(ctx *cli.Context) error {
				return withClient(ctx, func(r *repo.Repo, c *core.Client) error {
					user, counterAddr, err := userAndCounter(ctx, r)
					if err != nil {
						return err
					}
					receipt, err := c.InitTracker(user, counterAddr)
					if err != nil {
						return err
					}
					printReceipt(receipt)
					return nil
				})
			},
		},
		voteCommand("approve", tracker.Approve),
		voteCommand("reject", tracker.Reject),
		{
			Name:  "show",
			Usage: "Print the tracker record of a user",
			Flags: []cli.Flag{userFlag, counterFlag},
			Action: func(ctx *cli.Context) error {
				return withClient(ctx, func(r *repo.Repo, c *core.Client) error {
					user, err := resolveAddress(r, ctx.String("user"))
					if err != nil {
						return err
					}
					counterAddr, err := resolveAddress(r, ctx.String("counter"))
					if err != nil {
						return err
					}
					addr, record, err := c.Tracker(user, counterAddr)
					if err != nil {
						return err
					}
					fmt.Printf("tracker:  %s\n", addr)
					fmt.Printf("proposal: %s\n", record.ProposalRef)
					fmt.Printf("approve:  %d\n", record.ApproveCount)
					fmt.Printf("reject:   %d\n", record.RejectCount)
					return nil
				})
			},
		},
	},
}

func voteCommand(name string, kind tracker.Kind) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: fmt.Sprintf("Cast %s through the tracker", name),
		Flags: []cli.Flag{userFlag, counterFlag},
		Action: func(ctx *cli.Context) error {
			return withClient(ctx, func(r *repo.Repo, c *core.Client) error {
				user, counterAddr, err := userAndCounter(ctx, r)
				if err != nil {
					return err
				}
				receipt, err := c.Vote(user, counterAddr, kind)
				if err != nil {
					return err
				}
				printReceipt(receipt)
				return nil
			})
		},
	}
}

var deriveCMD = &cli.Command{
	Name:  "derive",
	Usage: "Print the delegate signer and tracker record addresses",
	Flags: []cli.Flag{userFlag, counterFlag},
	Action: func(ctx *cli.Context) error {
		r, err := loadRepo(ctx)
		if err != nil {
			return err
		}
		programs, err := r.Config.Programs.Parse()
		if err != nil {
			return err
		}
		user, err := resolveAddress(r, ctx.String("user"))
		if err != nil {
			return err
		}
		counterAddr, err := resolveAddress(r, ctx.String("counter"))
		if err != nil {
			return err
		}

		delegate, delegateBump, err := tracker.FindDelegate(programs.TrackerID, counterAddr)
		if err != nil {
			return err
		}
		record, recordBump, err := tracker.FindRecord(programs.TrackerID, user, counterAddr)
		if err != nil {
			return err
		}
		fmt.Printf("delegate: %s (bump %d)\n", delegate, delegateBump)
		fmt.Printf("tracker:  %s (bump %d)\n", record, recordBump)
		return nil
	},
}

// withClient opens the ledger for the duration of fn.
func withClient(ctx *cli.Context, fn func(r *repo.Repo, c *core.Client) error) error {
	r, err := loadRepo(ctx)
	if err != nil {
		return err
	}
	logger := log.New()
	logger.SetLevel(log.ParseLevel(r.Config.Log.Level))

	rt, programs, err := core.OpenRuntime(r.Config, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(r, core.NewClient(rt, programs))
}

// resolveAddress accepts a 0x-prefixed address or the name of a stored key.
func resolveAddress(r *repo.Repo, s string) (types.Address, error) {
	if s == "" {
		return types.Address{}, fmt.Errorf("address or key name is required")
	}
	if strings.HasPrefix(s, "0x") {
		return types.HexToAddress(s)
	}
	k, err := r.LoadKey(s)
	if err != nil {
		return types.Address{}, err
	}
	return k.Address(), nil
}

func loadOrCreateKey(r *repo.Repo, name string) (*types.Keypair, error) {
	if k, err := r.LoadKey(name); err == nil {
		return k, nil
	}
	k, err := types.NewKeypair()
	if err != nil {
		return nil, err
	}
	if err := r.SaveKey(name, k); err != nil {
		return nil, err
	}
	return k, nil
}

func userAndCounter(ctx *cli.Context, r *repo.Repo) (*types.Keypair, types.Address, error) {
	user, err := r.LoadKey(ctx.String("user"))
	if err != nil {
		return nil, types.Address{}, err
	}
	counterAddr, err := resolveAddress(r, ctx.String("counter"))
	if err != nil {
		return nil, types.Address{}, err
	}
	return user, counterAddr, nil
}

func printReceipt(receipt *ledger.Receipt) {
	fmt.Printf("tx %s committed at slot %d\n", receipt.TxHash, receipt.Slot)
	for _, line := range receipt.Logs {
		fmt.Printf("  %s\n", line)
	}
}
