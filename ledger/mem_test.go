package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/record-custody-backend/interfaces"
)

var (
	owner   = identityFromByte(0x01)
	doctorX = identityFromByte(0x02)
	nobody  = identityFromByte(0x03)
)

func identityFromByte(b byte) interfaces.Identity {
	var id interfaces.Identity
	id[19] = b
	return id
}

func anchorTestRecord(t *testing.T, l *MemLedger, recordID interfaces.RecordID) interfaces.ContentID {
	t.Helper()
	contentID := interfaces.ComputeContentID([]byte(recordID))
	_, err := l.AnchorRecord(context.Background(), recordID, contentID, []byte("wrapped-key"), "lab", owner)
	require.NoError(t, err)
	return contentID
}

func TestAnchorRecordDuplicateRejected(t *testing.T) {
	l := NewMemLedger()
	ctx := context.Background()
	contentID := anchorTestRecord(t, l, "rec-1")

	// Second anchor for the same ID fails; the first stays intact.
	_, err := l.AnchorRecord(ctx, "rec-1", interfaces.ComputeContentID([]byte("other")), []byte("other-key"), "scan", doctorX)
	assert.ErrorIs(t, err, interfaces.ErrLedgerRejected)

	meta, err := l.RecordMeta(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, contentID, meta.ContentID)
	assert.Equal(t, "lab", meta.RecordType)
	assert.Equal(t, owner, meta.Owner)
	assert.True(t, meta.IsActive)
}

func TestRecordMetaUnknown(t *testing.T) {
	l := NewMemLedger()

	_, err := l.RecordMeta(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrRecordUnknown)
}

func TestCheckAccess(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	tests := []struct {
		name    string
		setup   func(l *MemLedger)
		caller  interfaces.Identity
		allowed bool
	}{
		{
			name:    "owner always allowed",
			setup:   func(l *MemLedger) {},
			caller:  owner,
			allowed: true,
		},
		{
			name:    "stranger denied",
			setup:   func(l *MemLedger) {},
			caller:  nobody,
			allowed: false,
		},
		{
			name: "unexpired grant allowed",
			setup: func(l *MemLedger) {
				_, err := l.GrantAccess(context.Background(), "rec-1", doctorX, now.Add(time.Hour), owner)
				require.NoError(t, err)
			},
			caller:  doctorX,
			allowed: true,
		},
		{
			name: "expired grant denied",
			setup: func(l *MemLedger) {
				_, err := l.GrantAccess(context.Background(), "rec-1", doctorX, now.Add(-time.Hour), owner)
				require.NoError(t, err)
			},
			caller:  doctorX,
			allowed: false,
		},
		{
			name: "grant expiring exactly now denied",
			setup: func(l *MemLedger) {
				_, err := l.GrantAccess(context.Background(), "rec-1", doctorX, now, owner)
				require.NoError(t, err)
			},
			caller:  doctorX,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewMemLedger().WithClock(clock)
			anchorTestRecord(t, l, "rec-1")
			tt.setup(l)

			allowed, err := l.CheckAccess(context.Background(), "rec-1", tt.caller)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestCheckAccessUnknownRecord(t *testing.T) {
	l := NewMemLedger()

	allowed, err := l.CheckAccess(context.Background(), "missing", owner)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGrantAccessOwnerOnly(t *testing.T) {
	l := NewMemLedger()
	ctx := context.Background()
	anchorTestRecord(t, l, "rec-1")

	// Non-owner grant fails and must not create grant state.
	_, err := l.GrantAccess(ctx, "rec-1", nobody, time.Now().Add(time.Hour), doctorX)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	allowed, err := l.CheckAccess(ctx, "rec-1", nobody)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRevokeRecord(t *testing.T) {
	l := NewMemLedger()
	ctx := context.Background()
	anchorTestRecord(t, l, "rec-1")

	t.Run("non-owner cannot revoke", func(t *testing.T) {
		_, err := l.RevokeRecord(ctx, "rec-1", doctorX)
		assert.ErrorIs(t, err, interfaces.ErrUnauthorized)
	})

	t.Run("owner revoke flips IsActive", func(t *testing.T) {
		_, err := l.RevokeRecord(ctx, "rec-1", owner)
		require.NoError(t, err)

		meta, err := l.RecordMeta(ctx, "rec-1")
		require.NoError(t, err)
		assert.False(t, meta.IsActive)
	})
}

func TestPatientRecordsIncludesInactive(t *testing.T) {
	l := NewMemLedger()
	ctx := context.Background()
	anchorTestRecord(t, l, "rec-1")
	anchorTestRecord(t, l, "rec-2")

	_, err := l.RevokeRecord(ctx, "rec-1", owner)
	require.NoError(t, err)

	ids, err := l.PatientRecords(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.RecordID{"rec-1", "rec-2"}, ids)
}

func TestFileAccessRequestIdempotent(t *testing.T) {
	l := NewMemLedger()
	ctx := context.Background()

	require.NoError(t, l.FileAccessRequest(ctx, "req-1", "rec-1", "consult", doctorX))
	// Duplicate request ID is a no-op success.
	require.NoError(t, l.FileAccessRequest(ctx, "req-1", "rec-1", "another purpose", doctorX))

	requests := l.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "consult", requests[0].Purpose)
	assert.Equal(t, doctorX, requests[0].Requester)
}

func TestMemLedgerContextCancelled(t *testing.T) {
	l := NewMemLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.AnchorRecord(ctx, "rec-1", interfaces.ContentID{}, nil, "lab", owner)
	assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
}

var _ interfaces.Ledger = (*MemLedger)(nil)
var _ interfaces.Ledger = (*MockLedger)(nil)
