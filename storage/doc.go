// Package storage implements content-addressed blob storage backends for
// encrypted record payloads.
//
// A blob's content ID is the SHA-256 hash of its bytes, so storing
// identical bytes twice is idempotent and returns the same ID. Backends
// only ever see ciphertext; neither keys nor plaintext reach this layer.
//
// Supported backends:
//   - ipfs://   IPFS node (go-ipfs-api, Files API)
//   - s3://     Amazon S3 or compatible object storage
//   - vault://  HashiCorp Vault KV v2
//   - file://   Local filesystem (development and tests)
//
// A multi-backend aggregates several backends, storing to every
// available one and fetching from the first that has the content.
package storage
