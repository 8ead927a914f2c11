package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"github.com/medledger/record-custody-backend/cryptoutils"
	"github.com/medledger/record-custody-backend/interfaces"
)

// SimpleKMS provides a deterministic custody key escrow. Owner keypairs
// are derived from a master seed, so the same seed always reproduces the
// same keys. Suitable for development and single-instance deployments.
type SimpleKMS struct {
	masterKey []byte
}

// NewSimpleKMS creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSimpleKMS(masterKey []byte) (*SimpleKMS, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	k := &SimpleKMS{masterKey: make([]byte, len(masterKey))}
	copy(k.masterKey, masterKey)
	return k, nil
}

// OwnerPublicKey returns the owner's encryption public key in PEM form,
// derived on the fly from the master seed.
func (k *SimpleKMS) OwnerPublicKey(owner interfaces.Identity) ([]byte, error) {
	key, err := k.deriveOwnerKey(owner)
	if err != nil {
		return nil, err
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal owner public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), nil
}

// UnwrapCustodyKey recovers a record's symmetric key from the wrapped
// blob anchored on the ledger, using the owner's derived private key.
func (k *SimpleKMS) UnwrapCustodyKey(owner interfaces.Identity, wrapped []byte) ([]byte, error) {
	key, err := k.deriveOwnerKey(owner)
	if err != nil {
		return nil, err
	}

	privBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal owner private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes})

	plain, err := cryptoutils.DecryptWithPrivateKey(privPEM, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap custody key: %w", err)
	}
	return plain, nil
}

// deriveOwnerKey derives an owner's keypair from the master seed.
// Creates a deterministic ECDSA key using the P-256 curve.
func (k *SimpleKMS) deriveOwnerKey(owner interfaces.Identity) (*ecdsa.PrivateKey, error) {
	h := sha256.New()
	h.Write(k.masterKey)
	h.Write(owner.Bytes())
	h.Write([]byte("custody"))
	seed := h.Sum(nil)

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(seed[:32])
	d.Mod(d, new(big.Int).Sub(curve.Params().N, big.NewInt(1)))
	d.Add(d, big.NewInt(1)) // keep the scalar in [1, N-1]

	privateKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         d,
	}
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())

	return privateKey, nil
}

var _ interfaces.CustodyKMS = (*SimpleKMS)(nil)
