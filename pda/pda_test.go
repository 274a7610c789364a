package pda

import (
	"testing"

	"github.com/axiomesh/tally/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress(b byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = b + byte(i)
	}
	return a
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	program := testAddress(7)
	seeds := [][]byte{testAddress(1).Bytes(), testAddress(2).Bytes()}

	a1, b1, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)
	a2, b2, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.False(t, IsOnCurve(a1.Bytes()))
}

func TestFindProgramAddressSeedOrder(t *testing.T) {
	program := testAddress(7)
	user, counter := testAddress(1), testAddress(2)

	a1, _, err := FindProgramAddress([][]byte{user.Bytes(), counter.Bytes()}, program)
	require.NoError(t, err)
	a2, _, err := FindProgramAddress([][]byte{counter.Bytes(), user.Bytes()}, program)
	require.NoError(t, err)
	assert.NotEqual(t, a1, a2)
}

func TestFindProgramAddressProgramScoped(t *testing.T) {
	seeds := [][]byte{testAddress(1).Bytes()}

	a1, _, err := FindProgramAddress(seeds, testAddress(7))
	require.NoError(t, err)
	a2, _, err := FindProgramAddress(seeds, testAddress(8))
	require.NoError(t, err)
	assert.NotEqual(t, a1, a2)
}

func TestVerify(t *testing.T) {
	program := testAddress(9)
	for i := byte(0); i < 20; i++ {
		seeds := [][]byte{testAddress(i).Bytes(), []byte("vote")}
		addr, bump, err := FindProgramAddress(seeds, program)
		require.NoError(t, err)

		assert.True(t, Verify(seeds, bump, program, addr))
		assert.False(t, Verify(seeds, bump-1, program, addr))
		assert.False(t, Verify(seeds, bump, testAddress(10), addr))
		assert.False(t, Verify(seeds[:1], bump, program, addr))
	}
}

func TestCreateProgramAddressMatchesFind(t *testing.T) {
	program := testAddress(3)
	seeds := [][]byte{[]byte("counter")}

	addr, bump, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)

	created, err := CreateProgramAddress([][]byte{[]byte("counter"), {bump}}, program)
	require.NoError(t, err)
	assert.Equal(t, addr, created)
}

func TestSeedLimits(t *testing.T) {
	program := testAddress(3)

	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, program)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	tooMany := make([][]byte, MaxSeeds+1)
	_, err = CreateProgramAddress(tooMany, program)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	// FindProgramAddress needs room for the bump seed
	_, _, err = FindProgramAddress(make([][]byte, MaxSeeds), program)
	assert.ErrorIs(t, err, ErrMaxSeedLength)
}

func TestKeyedAddressesAreOnCurve(t *testing.T) {
	for i := 0; i < 10; i++ {
		k, err := types.NewKeypair()
		require.NoError(t, err)
		assert.True(t, IsOnCurve(k.Address().Bytes()))
	}
}

func TestCapability(t *testing.T) {
	program := testAddress(4)
	counter := testAddress(5)

	addr, bump, err := FindProgramAddress([][]byte{counter.Bytes()}, program)
	require.NoError(t, err)

	c := NewCapability(program, bump, counter.Bytes())
	derived, err := c.Address()
	require.NoError(t, err)
	assert.Equal(t, addr, derived)
	assert.True(t, c.Authorizes(addr))
	assert.Len(t, c.SignerSeeds(), 2)

	other := NewCapability(testAddress(6), bump, counter.Bytes())
	assert.False(t, other.Authorizes(addr))
}
