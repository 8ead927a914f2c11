// Package cryptoutils implements the cryptographic boundary of the record
// custody system: per-record symmetric key generation, authenticated
// payload encryption, and ECIES wrapping of custody keys under owner
// public keys.
//
// Payloads are sealed with AES-256-GCM under a fresh random key per
// record. The nonce is prepended to the ciphertext so decryption is fully
// self-contained given ciphertext and key. Custody keys are wrapped with
// an ephemeral P-256 ECDH agreement, HKDF-SHA256 key derivation, and
// AES-GCM, so the plaintext key never leaves this boundary's callers.
package cryptoutils
