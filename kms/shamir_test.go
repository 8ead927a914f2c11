package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/record-custody-backend/cryptoutils"
)

func TestShamirKMSUnlockFlow(t *testing.T) {
	shares, err := SplitMasterKey(testSeed, 5, 3)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	k, err := NewShamirKMS(3)
	require.NoError(t, err)

	owner := testOwner(0x01)

	// Locked before threshold.
	_, err = k.OwnerPublicKey(owner)
	assert.ErrorIs(t, err, ErrLocked)

	unlocked, err := k.SubmitShare(shares[0])
	require.NoError(t, err)
	assert.False(t, unlocked)

	unlocked, err = k.SubmitShare(shares[2])
	require.NoError(t, err)
	assert.False(t, unlocked)

	unlocked, err = k.SubmitShare(shares[4])
	require.NoError(t, err)
	assert.True(t, unlocked)
	assert.True(t, k.Unlocked())

	// Reconstructed seed derives the same keys as a SimpleKMS on the
	// original seed.
	simple, err := NewSimpleKMS(testSeed)
	require.NoError(t, err)

	pubShamir, err := k.OwnerPublicKey(owner)
	require.NoError(t, err)
	pubSimple, err := simple.OwnerPublicKey(owner)
	require.NoError(t, err)
	assert.Equal(t, pubSimple, pubShamir)

	recordKey, err := cryptoutils.GenerateRecordKey()
	require.NoError(t, err)
	wrapped, err := cryptoutils.EncryptWithPublicKey(pubShamir, recordKey)
	require.NoError(t, err)

	unwrapped, err := k.UnwrapCustodyKey(owner, wrapped)
	require.NoError(t, err)
	assert.Equal(t, recordKey, unwrapped)
}

func TestShamirKMSBadShares(t *testing.T) {
	k, err := NewShamirKMS(2)
	require.NoError(t, err)

	_, err = k.SubmitShare([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	// Garbage shares fail to combine and reset collection.
	_, err = k.SubmitShare([]byte{0x04})
	assert.Error(t, err)
	assert.False(t, k.Unlocked())
}

func TestNewShamirKMSValidation(t *testing.T) {
	_, err := NewShamirKMS(1)
	assert.Error(t, err)

	_, err = SplitMasterKey([]byte("short"), 3, 2)
	assert.Error(t, err)
}
