package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/tally"
	"github.com/axiomesh/tally/core"
	"github.com/axiomesh/tally/repo"
	"github.com/urfave/cli/v2"
)

func initLog(r *repo.Repo) error {
	err := log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}
	return nil
}

func serve(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}
	if err := initLog(r); err != nil {
		return err
	}

	printVersion()

	node, err := core.NewNode(ctx.Context, r.Config)
	if err != nil {
		return fmt.Errorf("new node error: %w", err)
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("start node failed: %w", err)
	}

	fmt.Printf("=============Tally is serving on %s=============\n", r.Config.API.Listen)

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-stop:
		fmt.Println("received interrupt signal, shutting down...")
	case <-node.Done():
	}
	return node.Stop()
}

func printVersion() {
	fmt.Printf("Tally version: %s-%s-%s\n", tally.CurrentVersion, tally.CurrentBranch, tally.CurrentCommit)
	fmt.Printf("App build date: %s\n", tally.BuildDate)
	fmt.Printf("System version: %s\n", tally.Platform)
	fmt.Printf("Golang version: %s\n", tally.GoVersion)
	fmt.Println()
}
