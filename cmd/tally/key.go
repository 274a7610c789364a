package main

import (
	"fmt"

	"github.com/axiomesh/tally/repo"
	"github.com/axiomesh/tally/types"
	"github.com/urfave/cli/v2"
)

var keyCMD = &cli.Command{
	Name:  "key",
	Usage: "Manage the signing keys stored in the repo",
	Subcommands: []*cli.Command{
		{
			Name:      "new",
			Usage:     "Generate a keypair and store it under a name",
			ArgsUsage: "<name>",
			Action:    newKey,
		},
		{
			Name:      "show",
			Usage:     "Show the address of a stored key",
			ArgsUsage: "<name>",
			Action:    showKey,
		},
	},
}

func loadRepo(ctx *cli.Context) (*repo.Repo, error) {
	p, err := getRootPath(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Load(p)
}

func newKey(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return fmt.Errorf("key name is required")
	}
	r, err := loadRepo(ctx)
	if err != nil {
		return err
	}

	k, err := types.NewKeypair()
	if err != nil {
		return err
	}
	if err := r.SaveKey(name, k); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", name, k.Address())
	return nil
}

func showKey(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return fmt.Errorf("key name is required")
	}
	r, err := loadRepo(ctx)
	if err != nil {
		return err
	}

	k, err := r.LoadKey(name)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", name, k.Address())
	return nil
}
