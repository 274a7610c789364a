package repo

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/axiomesh/tally/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

var keyNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// keyFile is the on-disk form of a keypair, keys/<name>.toml.
type keyFile struct {
	Address string `toml:"address"`
	Seed    string `toml:"seed"`
}

func (r *Repo) keyPath(name string) (string, error) {
	if !keyNamePattern.MatchString(name) {
		return "", errors.Errorf("invalid key name %q", name)
	}
	return filepath.Join(r.Config.RepoRoot, KeysDirName, name+".toml"), nil
}

// SaveKey stores k under name. Existing keys are never overwritten.
func (r *Repo) SaveKey(name string, k *types.Keypair) error {
	p, err := r.keyPath(name)
	if err != nil {
		return err
	}
	if Exist(p) {
		return errors.Errorf("key %q already exists", name)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return errors.Wrap(err, "failed to create keys dir")
	}

	raw, err := toml.Marshal(keyFile{
		Address: k.Address().Hex(),
		Seed:    hexutil.Encode(k.Seed()),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(p, raw, 0600)
}

func (r *Repo) LoadKey(name string) (*types.Keypair, error) {
	p, err := r.keyPath(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read key %q", name)
	}

	var f keyFile
	if err := toml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to decode key %q", name)
	}
	seed, err := hexutil.Decode(f.Seed)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode seed of key %q", name)
	}
	k, err := types.KeypairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if f.Address != "" && f.Address != k.Address().Hex() {
		return nil, errors.Errorf("key %q: address %s does not match seed", name, f.Address)
	}
	return k, nil
}
