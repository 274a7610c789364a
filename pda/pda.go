// Package pda derives program addresses: addresses computed from seed bytes
// and a program identity that fall off the ed25519 curve, so no private key
// exists for them and only the deriving program can authorize actions for
// them.
package pda

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
	"github.com/axiomesh/tally/types"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	marker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLength = errors.New("pda: too many seeds or seed longer than 32 bytes")
	ErrInvalidSeeds  = errors.New("pda: derived address lies on the ed25519 curve")
	ErrNoViableBump  = errors.New("pda: no bump yields an off-curve address")
)

// CreateProgramAddress hashes seeds and programID into an address. It fails
// with ErrInvalidSeeds when the hash is a valid curve point.
func CreateProgramAddress(seeds [][]byte, programID types.Address) (types.Address, error) {
	if len(seeds) > MaxSeeds {
		return types.Address{}, ErrMaxSeedLength
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return types.Address{}, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(marker))

	addr := types.BytesToAddress(h.Sum(nil))
	if IsOnCurve(addr[:]) {
		return types.Address{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with its bump. The bump is appended as the last
// seed.
func FindProgramAddress(seeds [][]byte, programID types.Address) (types.Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.Address{}, 0, ErrMaxSeedLength
	}

	bumpSeed := []byte{0}
	candidate := append(append(make([][]byte, 0, len(seeds)+1), seeds...), bumpSeed)
	for bump := 255; bump >= 0; bump-- {
		bumpSeed[0] = uint8(bump)
		addr, err := CreateProgramAddress(candidate, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return types.Address{}, 0, err
		}
	}
	return types.Address{}, 0, ErrNoViableBump
}

// Verify recomputes the address for seeds and bump and compares it with
// candidate.
func Verify(seeds [][]byte, bump uint8, programID types.Address, candidate types.Address) bool {
	addr, err := CreateProgramAddress(withBump(seeds, bump), programID)
	return err == nil && addr == candidate
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}
