package kms

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/shamir"

	"github.com/medledger/record-custody-backend/interfaces"
)

// ErrLocked is returned by key operations before enough shares have been
// submitted to reconstruct the master seed.
var ErrLocked = errors.New("kms locked: master seed not yet reconstructed")

// ShamirKMS is a custody KMS whose master seed is split into Shamir
// shares held by administrators. The KMS starts locked and serves key
// operations only after a threshold of shares has been submitted.
type ShamirKMS struct {
	mu        sync.Mutex
	threshold int
	shares    [][]byte
	inner     *SimpleKMS
}

// SplitMasterKey splits a master key into numShares shares, any
// threshold of which reconstruct it. Used once at deployment time; the
// shares are handed to administrators and the plaintext key discarded.
func SplitMasterKey(masterKey []byte, numShares, threshold int) ([][]byte, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	shares, err := shamir.Split(masterKey, numShares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master key: %w", err)
	}
	return shares, nil
}

// NewShamirKMS creates a locked KMS that unlocks after threshold shares.
func NewShamirKMS(threshold int) (*ShamirKMS, error) {
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	return &ShamirKMS{threshold: threshold}, nil
}

// SubmitShare accepts one administrator share. When the threshold is
// reached the master seed is reconstructed and the KMS unlocks; the
// return value reports whether the KMS is now unlocked.
func (k *ShamirKMS) SubmitShare(share []byte) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.inner != nil {
		return true, nil
	}

	stored := make([]byte, len(share))
	copy(stored, share)
	k.shares = append(k.shares, stored)

	if len(k.shares) < k.threshold {
		return false, nil
	}

	masterKey, err := shamir.Combine(k.shares)
	if err != nil {
		// A bad share poisons the whole set; restart collection.
		k.shares = nil
		return false, fmt.Errorf("failed to reconstruct master key: %w", err)
	}

	inner, err := NewSimpleKMS(masterKey)
	if err != nil {
		k.shares = nil
		return false, fmt.Errorf("reconstructed master key rejected: %w", err)
	}

	k.inner = inner
	k.shares = nil
	return true, nil
}

// Unlocked reports whether the master seed has been reconstructed.
func (k *ShamirKMS) Unlocked() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.inner != nil
}

// OwnerPublicKey implements interfaces.CustodyKMS. Fails with ErrLocked
// before unlock.
func (k *ShamirKMS) OwnerPublicKey(owner interfaces.Identity) ([]byte, error) {
	inner, err := k.unlocked()
	if err != nil {
		return nil, err
	}
	return inner.OwnerPublicKey(owner)
}

// UnwrapCustodyKey implements interfaces.CustodyKMS. Fails with
// ErrLocked before unlock.
func (k *ShamirKMS) UnwrapCustodyKey(owner interfaces.Identity, wrapped []byte) ([]byte, error) {
	inner, err := k.unlocked()
	if err != nil {
		return nil, err
	}
	return inner.UnwrapCustodyKey(owner, wrapped)
}

func (k *ShamirKMS) unlocked() (*SimpleKMS, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.inner == nil {
		return nil, ErrLocked
	}
	return k.inner, nil
}

var _ interfaces.CustodyKMS = (*ShamirKMS)(nil)
