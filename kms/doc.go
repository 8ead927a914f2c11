// Package kms escrows the keypairs that protect per-record custody keys.
//
// Owners are ledger identities without an out-of-band encryption key, so
// the KMS derives a P-256 keypair per owner deterministically from a
// 32-byte master seed. The coordinator wraps each record's symmetric key
// under the owner's derived public key before anchoring; on an authorized
// read the KMS unwraps it again. The plaintext custody key therefore
// never reaches the ledger or the blob store.
//
// SimpleKMS takes the seed directly and suits development and tests.
// ShamirKMS keeps the seed split into Shamir shares and serves requests
// only after a threshold of shares has been submitted.
package kms
