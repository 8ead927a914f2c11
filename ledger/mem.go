package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medledger/record-custody-backend/interfaces"
)

// MemLedger is a stateful in-memory implementation of interfaces.Ledger
// for development and tests. It mirrors the records contract's rules:
// one anchor per record ID, owner-only grants and revokes, idempotent
// access requests, grants void once now >= expiry.
type MemLedger struct {
	mu       sync.RWMutex
	records  map[interfaces.RecordID]interfaces.RecordMeta
	byOwner  map[interfaces.Identity][]interfaces.RecordID
	grants   map[interfaces.RecordID]map[interfaces.Identity]time.Time
	requests map[interfaces.RequestID]interfaces.AccessRequest
	now      func() time.Time
	height   uint64
}

// NewMemLedger creates an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		records:  make(map[interfaces.RecordID]interfaces.RecordMeta),
		byOwner:  make(map[interfaces.Identity][]interfaces.RecordID),
		grants:   make(map[interfaces.RecordID]map[interfaces.Identity]time.Time),
		requests: make(map[interfaces.RequestID]interfaces.AccessRequest),
		now:      time.Now,
	}
}

// WithClock overrides the ledger's clock. Tests use it to pin grant
// expiry evaluation.
func (l *MemLedger) WithClock(now func() time.Time) *MemLedger {
	l.now = now
	return l
}

// AnchorRecord anchors a record atomically under the write lock; the
// second anchor of the same ID observes ErrLedgerRejected.
func (l *MemLedger) AnchorRecord(ctx context.Context, recordID interfaces.RecordID, contentID interfaces.ContentID, custodyKeyBlob []byte, recordType string, owner interfaces.Identity) (interfaces.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Receipt{}, fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[recordID]; exists {
		return interfaces.Receipt{}, fmt.Errorf("%w: %s", interfaces.ErrLedgerRejected, revertRecordExists)
	}

	keyBlob := make([]byte, len(custodyKeyBlob))
	copy(keyBlob, custodyKeyBlob)

	l.records[recordID] = interfaces.RecordMeta{
		RecordID:       recordID,
		ContentID:      contentID,
		CustodyKeyBlob: keyBlob,
		RecordType:     recordType,
		Owner:          owner,
		IsActive:       true,
		CreatedAt:      l.now().UTC(),
	}
	l.byOwner[owner] = append(l.byOwner[owner], recordID)

	return l.mint(), nil
}

// RevokeRecord marks a record inactive. Only the anchored owner may
// revoke.
func (l *MemLedger) RevokeRecord(ctx context.Context, recordID interfaces.RecordID, owner interfaces.Identity) (interfaces.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Receipt{}, fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	meta, exists := l.records[recordID]
	if !exists {
		return interfaces.Receipt{}, fmt.Errorf("%w: %s", interfaces.ErrRecordUnknown, revertRecordUnknown)
	}
	if meta.Owner != owner {
		return interfaces.Receipt{}, fmt.Errorf("%w: %s", interfaces.ErrUnauthorized, revertNotOwner)
	}

	meta.IsActive = false
	l.records[recordID] = meta

	return l.mint(), nil
}

// CheckAccess reports whether caller is the owner or holds an unexpired
// grant. Read-only.
func (l *MemLedger) CheckAccess(ctx context.Context, recordID interfaces.RecordID, caller interfaces.Identity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	meta, exists := l.records[recordID]
	if !exists {
		return false, nil
	}
	if meta.Owner == caller {
		return true, nil
	}

	expiry, granted := l.grants[recordID][caller]
	if !granted {
		return false, nil
	}
	// Expired exactly at the boundary.
	return l.now().Before(expiry), nil
}

// RecordMeta returns the anchored metadata, IsActive included.
func (l *MemLedger) RecordMeta(ctx context.Context, recordID interfaces.RecordID) (interfaces.RecordMeta, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.RecordMeta{}, fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	meta, exists := l.records[recordID]
	if !exists {
		return interfaces.RecordMeta{}, interfaces.ErrRecordUnknown
	}
	return meta, nil
}

// PatientRecords returns every record ID anchored by the owner, in anchor
// order, inactive ones included.
func (l *MemLedger) PatientRecords(ctx context.Context, owner interfaces.Identity) ([]interfaces.RecordID, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]interfaces.RecordID, len(l.byOwner[owner]))
	copy(ids, l.byOwner[owner])
	return ids, nil
}

// FileAccessRequest appends an access request; a duplicate request ID is
// a no-op success.
func (l *MemLedger) FileAccessRequest(ctx context.Context, requestID interfaces.RequestID, recordID interfaces.RecordID, purpose string, requester interfaces.Identity) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.requests[requestID]; exists {
		return nil
	}

	l.requests[requestID] = interfaces.AccessRequest{
		RequestID: requestID,
		RecordID:  recordID,
		Requester: requester,
		Purpose:   purpose,
		FiledAt:   l.now().UTC(),
	}
	return nil
}

// GrantAccess records a grant after verifying grantor owns the record.
func (l *MemLedger) GrantAccess(ctx context.Context, recordID interfaces.RecordID, grantee interfaces.Identity, expiry time.Time, grantor interfaces.Identity) (interfaces.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Receipt{}, fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	meta, exists := l.records[recordID]
	if !exists {
		return interfaces.Receipt{}, fmt.Errorf("%w: %s", interfaces.ErrRecordUnknown, revertRecordUnknown)
	}
	if meta.Owner != grantor {
		return interfaces.Receipt{}, fmt.Errorf("%w: %s", interfaces.ErrUnauthorized, revertNotOwner)
	}

	if l.grants[recordID] == nil {
		l.grants[recordID] = make(map[interfaces.Identity]time.Time)
	}
	l.grants[recordID][grantee] = expiry

	return l.mint(), nil
}

// Requests returns all filed access requests, for inspection in tests
// and the dev-mode API.
func (l *MemLedger) Requests() []interfaces.AccessRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]interfaces.AccessRequest, 0, len(l.requests))
	for _, req := range l.requests {
		out = append(out, req)
	}
	return out
}

// mint fabricates a receipt for a committed state change. Callers hold
// the write lock.
func (l *MemLedger) mint() interfaces.Receipt {
	l.height++
	return interfaces.Receipt{
		TxHash:      fmt.Sprintf("0x%064x", l.height),
		BlockNumber: l.height,
	}
}
