package interfaces

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLedgerRejected is returned when the ledger refuses a
	// state-changing call, typically because the record ID is already
	// anchored. Terminal for the current request.
	ErrLedgerRejected = errors.New("ledger rejected transaction")

	// ErrLedgerUnavailable is returned on ledger transport or consensus
	// timeout. Callers may retry; AnchorRecord retries must re-check
	// RecordMeta first to avoid a duplicate anchor after a
	// successful-but-unacknowledged submission.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrUnauthorized is returned by the ledger when a state-changing
	// call requires record ownership and the caller is not the owner.
	// This is the authoritative enforcement; local pre-checks are an
	// optimization only.
	ErrUnauthorized = errors.New("not authorized for this record")

	// ErrRecordUnknown is returned when the ledger has no record
	// anchored under the requested ID.
	ErrRecordUnknown = errors.New("record unknown")

	// ErrRecordInactive is returned when a record exists but has been
	// revoked. Distinct from ErrRecordUnknown.
	ErrRecordInactive = errors.New("record inactive")

	// ErrAccessDenied is the coordinator-level authorization outcome for
	// a read by an identity that is neither the owner nor the holder of
	// an unexpired grant.
	ErrAccessDenied = errors.New("access denied to this record")
)

// Ledger is the authorization-aware, transactional view over the
// access-control ledger. Records, grants, and requests live entirely in
// ledger state; the ledger is consumed as an opaque trusted oracle.
//
// Every state-changing call follows the ledger's two-phase cost model:
// the implementation estimates resource cost and fetches a current price
// immediately before each submission attempt.
type Ledger interface {
	// AnchorRecord anchors a record's content ID and custody metadata in
	// one atomic call, binding it to the owner identity. Returns
	// ErrLedgerRejected if the record ID already exists.
	AnchorRecord(ctx context.Context, recordID RecordID, contentID ContentID, custodyKeyBlob []byte, recordType string, owner Identity) (Receipt, error)

	// CheckAccess reports whether caller may read the record: true iff
	// caller is the owner or holds an unexpired grant. Read-only, no
	// side effects.
	CheckAccess(ctx context.Context, recordID RecordID, caller Identity) (bool, error)

	// RecordMeta returns the authoritative anchored metadata. A revoked
	// record is returned with IsActive=false, distinct from
	// ErrRecordUnknown for an ID the ledger has never seen.
	RecordMeta(ctx context.Context, recordID RecordID) (RecordMeta, error)

	// PatientRecords enumerates every record ID ever anchored by the
	// owner, inactive ones included. Filtering is the caller's job.
	PatientRecords(ctx context.Context, owner Identity) ([]RecordID, error)

	// FileAccessRequest appends a durable access request. Idempotent on
	// duplicate request IDs: the second call is a no-op success.
	FileAccessRequest(ctx context.Context, requestID RequestID, recordID RecordID, purpose string, requester Identity) error

	// GrantAccess records a time-bounded read grant. The ledger rejects
	// the call with ErrUnauthorized when grantor is not the record owner.
	GrantAccess(ctx context.Context, recordID RecordID, grantee Identity, expiry time.Time, grantor Identity) (Receipt, error)

	// RevokeRecord marks a record inactive. Owner only.
	RevokeRecord(ctx context.Context, recordID RecordID, owner Identity) (Receipt, error)
}
