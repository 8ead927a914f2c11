package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentID is a 32-byte SHA-256 digest uniquely identifying a stored
// blob. It is a pure function of the blob bytes: storing identical bytes
// always yields the same ID, which makes Store idempotent.
type ContentID [32]byte

// NewContentIDFromBytes converts a 32-byte slice into a ContentID.
func NewContentIDFromBytes(source []byte) (ContentID, error) {
	if len(source) != 32 {
		return ContentID{}, errors.New("invalid ContentID conversion from bytes: incorrect length")
	}

	var hash [32]byte
	copy(hash[:], source)
	return ContentID(hash), nil
}

// NewContentIDFromHex parses a ContentID from a 64-character hex string,
// with or without a 0x prefix.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ContentID(hash), nil
}

// ComputeContentID calculates the content ID of a blob.
func ComputeContentID(data []byte) ContentID {
	hash := sha256.Sum256(data)
	return ContentID(hash)
}

// String returns hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns raw 32-byte hash.
func (id ContentID) Bytes() []byte {
	return id[:]
}

// Equal compares two content IDs.
func (id ContentID) Equal(other ContentID) bool {
	return bytes.Equal(id[:], other[:])
}

// IsZero reports whether the ID is all zeroes.
func (id ContentID) IsZero() bool {
	return id == ContentID{}
}

var (
	// ErrContentNotFound is returned when no blob with the requested
	// content ID is known to the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrStoreUnavailable is returned when a storage backend cannot be
	// reached. Callers may retry with backoff; Store is idempotent.
	ErrStoreUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend provides content-addressed storage for opaque encrypted
// record payloads. Backends never see plaintext.
type StorageBackend interface {
	// Store saves a blob and returns its content ID. Storing identical
	// bytes twice returns the same ID without error.
	Store(ctx context.Context, data []byte) (ContentID, error)

	// Fetch retrieves a blob by content ID.
	Fetch(ctx context.Context, id ContentID) ([]byte, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory interface {
	// StorageBackendFor creates a backend from a URI.
	// Supports ipfs://, s3://, vault://, file://
	StorageBackendFor(locationURI string) (StorageBackend, error)

	// CreateMultiBackend creates an aggregated backend that stores to
	// every available backend and fetches from the first that has the
	// content.
	CreateMultiBackend(locationURIs []string) (StorageBackend, error)
}
