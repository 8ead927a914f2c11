package access

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medledger/record-custody-backend/interfaces"
	"github.com/medledger/record-custody-backend/ledger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity(b byte) interfaces.Identity {
	var id interfaces.Identity
	id[19] = b
	return id
}

func anchorTestRecord(t *testing.T, memLedger *ledger.MemLedger, owner interfaces.Identity) interfaces.RecordID {
	t.Helper()
	recordID := interfaces.RecordID("rec-" + owner.String())
	_, err := memLedger.AnchorRecord(context.Background(), recordID,
		interfaces.ComputeContentID([]byte("sealed")), []byte("wrapped"), "note", owner)
	require.NoError(t, err)
	return recordID
}

func TestRequestAccess(t *testing.T) {
	memLedger := ledger.NewMemLedger()
	workflow := NewWorkflow(memLedger, discardLogger())

	owner := testIdentity(0x01)
	requester := testIdentity(0x02)
	recordID := anchorTestRecord(t, memLedger, owner)

	requestID, err := workflow.RequestAccess(context.Background(), recordID, requester, "second opinion")
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	requests := memLedger.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, requestID, requests[0].RequestID)
	assert.Equal(t, recordID, requests[0].RecordID)
	assert.Equal(t, requester, requests[0].Requester)
	assert.Equal(t, "second opinion", requests[0].Purpose)

	// A request grants nothing.
	allowed, err := memLedger.CheckAccess(context.Background(), recordID, requester)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGrantAccessByOwner(t *testing.T) {
	memLedger := ledger.NewMemLedger()
	workflow := NewWorkflow(memLedger, discardLogger())

	owner := testIdentity(0x01)
	doctor := testIdentity(0x02)
	recordID := anchorTestRecord(t, memLedger, owner)

	err := workflow.GrantAccess(context.Background(), recordID, doctor, time.Now().Add(time.Hour), owner)
	require.NoError(t, err)

	allowed, err := memLedger.CheckAccess(context.Background(), recordID, doctor)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestGrantAccessByNonOwner(t *testing.T) {
	memLedger := ledger.NewMemLedger()
	workflow := NewWorkflow(memLedger, discardLogger())

	owner := testIdentity(0x01)
	intruder := testIdentity(0x03)
	doctor := testIdentity(0x02)
	recordID := anchorTestRecord(t, memLedger, owner)

	err := workflow.GrantAccess(context.Background(), recordID, doctor, time.Now().Add(time.Hour), intruder)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	allowed, err := memLedger.CheckAccess(context.Background(), recordID, doctor)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGrantAccessUnknownRecord(t *testing.T) {
	workflow := NewWorkflow(ledger.NewMemLedger(), discardLogger())

	err := workflow.GrantAccess(context.Background(), "missing", testIdentity(0x02),
		time.Now().Add(time.Hour), testIdentity(0x01))
	assert.ErrorIs(t, err, interfaces.ErrRecordUnknown)
}

// The pre-check stops a non-owner grant before any ledger submission.
func TestGrantPrecheckShortCircuits(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	workflow := NewWorkflow(mockLedger, discardLogger())

	owner := testIdentity(0x01)
	recordID := interfaces.RecordID("rec-1")
	mockLedger.On("RecordMeta", mock.Anything, recordID).
		Return(interfaces.RecordMeta{RecordID: recordID, Owner: owner, IsActive: true}, nil).Once()

	err := workflow.GrantAccess(context.Background(), recordID, testIdentity(0x02),
		time.Now().Add(time.Hour), testIdentity(0x03))
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	mockLedger.AssertExpectations(t)
	mockLedger.AssertNotCalled(t, "GrantAccess",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestAccessIdempotentAtLedger(t *testing.T) {
	memLedger := ledger.NewMemLedger()

	owner := testIdentity(0x01)
	requester := testIdentity(0x02)
	recordID := anchorTestRecord(t, memLedger, owner)

	err := memLedger.FileAccessRequest(context.Background(), "req-1", recordID, "audit", requester)
	require.NoError(t, err)
	err = memLedger.FileAccessRequest(context.Background(), "req-1", recordID, "audit", requester)
	require.NoError(t, err)

	assert.Len(t, memLedger.Requests(), 1)
}
