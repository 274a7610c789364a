package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// .env in the working directory feeds TALLY_* overrides
	if err := loadDotEnv(".env"); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	app := cli.NewApp()
	app.Name = "Tally"
	app.Usage = "Proposal vote tallying on a program-derived-address ledger"
	app.Compiled = time.Now()

	cli.VersionPrinter = func(c *cli.Context) {
		printVersion()
	}

	// global flags
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "repo",
			Usage: "Tally storage repo path",
		},
	}

	app.Commands = []*cli.Command{
		configCMD,
		keyCMD,
		airdropCMD,
		counterCMD,
		trackerCMD,
		deriveCMD,
		{
			Name:   "serve",
			Usage:  "Serve the ledger query API until interrupted",
			Action: serve,
		},
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "Tally version",
			Action: func(ctx *cli.Context) error {
				printVersion()
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
