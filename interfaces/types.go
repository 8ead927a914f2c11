package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Identity is a 20-byte ledger account address identifying a patient,
// practitioner, or any other actor known to the access-control ledger.
type Identity [20]byte

// NewIdentityFromHex parses an identity from a hex string, with or without
// a 0x prefix.
func NewIdentityFromHex(source string) (Identity, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 40 {
		return Identity{}, errors.New("invalid identity length: hex string must be 40 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid identity hex format: %w", err)
	}

	var id Identity
	copy(id[:], raw)
	return id, nil
}

// NewIdentityFromBytes converts a 20-byte slice into an Identity.
func NewIdentityFromBytes(source []byte) (Identity, error) {
	if len(source) != 20 {
		return Identity{}, errors.New("invalid identity conversion from bytes: incorrect length")
	}

	var id Identity
	copy(id[:], source)
	return id, nil
}

// String returns the 0x-prefixed hex representation.
func (id Identity) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns the raw 20-byte address.
func (id Identity) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the identity is the zero address.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// ContractAddress is the address of the records contract on the ledger.
type ContractAddress = Identity

// RecordID uniquely identifies an anchored record. IDs are immutable once
// anchored; the ledger enforces that each ID is anchored at most once.
type RecordID string

// String returns the raw record ID.
func (id RecordID) String() string { return string(id) }

// RequestID uniquely identifies a filed access request. Filing the same
// request ID twice is a no-op at the ledger.
type RequestID string

// String returns the raw request ID.
func (id RequestID) String() string { return string(id) }

// RecordMeta is the authoritative anchored metadata for a record. The
// ledger owns every field; callers treat it as a read-through view, never
// as a local source of truth.
type RecordMeta struct {
	RecordID       RecordID
	ContentID      ContentID
	CustodyKeyBlob []byte // custody key wrapped under the owner's public key
	RecordType     string
	Owner          Identity
	IsActive       bool
	CreatedAt      time.Time
}

// RecordSummary is the listing projection of a record: metadata only,
// never the payload.
type RecordSummary struct {
	RecordID   RecordID  `json:"recordId"`
	RecordType string    `json:"recordType"`
	CreatedAt  time.Time `json:"timestamp"`
	ContentID  ContentID `json:"contentId"`
}

// AccessGrant is a time-bounded delegation of read permission. Its
// existence and validity are determined solely by the ledger at query
// time; a grant with Expiry at or before now is void.
type AccessGrant struct {
	RecordID  RecordID
	Grantee   Identity
	Expiry    time.Time
	GrantedBy Identity
}

// Expired reports whether the grant is void at the given instant.
// A grant expires exactly at its expiry timestamp.
func (g AccessGrant) Expired(now time.Time) bool {
	return !now.Before(g.Expiry)
}

// AccessRequest is a durable audit-trail signal that an identity wants
// access to a record. It carries no authorization weight and never
// expires; the record owner acts on it out-of-band.
type AccessRequest struct {
	RequestID RequestID
	RecordID  RecordID
	Requester Identity
	Purpose   string
	FiledAt   time.Time
}

// Receipt acknowledges a state-changing ledger operation.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}
