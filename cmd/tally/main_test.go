package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runProposal(args ...string) (uint32, error) {
	var got uint32
	app := &cli.App{
		Name: "tally",
		Commands: []*cli.Command{
			{
				Name:  "bind",
				Flags: []cli.Flag{proposalFlag},
				Action: func(ctx *cli.Context) error {
					id, err := proposalID(ctx)
					got = id
					return err
				},
			},
		},
	}
	err := app.Run(append([]string{"tally", "bind"}, args...))
	return got, err
}

func TestProposalID(t *testing.T) {
	id, err := runProposal()
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = runProposal("--proposal", "4294967295")
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967295), id)

	_, err = runProposal("--proposal", "4294967296")
	assert.ErrorContains(t, err, "exceeds")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, "ok.env")
	require.NoError(t, os.WriteFile(path, []byte("TALLY_DOTENV_TEST=1\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("TALLY_DOTENV_TEST") })
	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "1", os.Getenv("TALLY_DOTENV_TEST"))

	// exists but cannot be read as a file
	unreadable := filepath.Join(dir, "dir.env")
	require.NoError(t, os.Mkdir(unreadable, 0755))
	assert.Error(t, loadDotEnv(unreadable))
}
