package interfaces

// CustodyKMS escrows the keypairs under which per-record custody keys are
// wrapped. The coordinator wraps each record's symmetric key under the
// owner's public key before anchoring, so the plaintext key never reaches
// the ledger; on an authorized read the KMS unwraps it again.
type CustodyKMS interface {
	// OwnerPublicKey returns the owner's encryption public key in PEM
	// form, deriving the keypair if the owner has none yet.
	OwnerPublicKey(owner Identity) ([]byte, error)

	// UnwrapCustodyKey recovers a record's symmetric key from the blob
	// anchored on the ledger, using the owner's escrowed private key.
	UnwrapCustodyKey(owner Identity, wrapped []byte) ([]byte, error)
}
