package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

const SeedLength = ed25519.SeedSize

// Keypair is an ed25519 signing key. Its public key is its Address.
type Keypair struct {
	priv ed25519.PrivateKey
}

func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv}, nil
}

func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("keypair seed has %d bytes, want %d", len(seed), SeedLength)
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Keypair) Address() Address {
	return BytesToAddress(k.priv.Public().(ed25519.PublicKey))
}

func (k *Keypair) Seed() []byte {
	return k.priv.Seed()
}

func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// VerifySignature reports whether sig is a valid signature of msg by the key
// behind addr.
func VerifySignature(addr Address, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(addr[:]), msg, sig)
}
