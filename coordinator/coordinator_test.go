package coordinator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medledger/record-custody-backend/interfaces"
	"github.com/medledger/record-custody-backend/kms"
	"github.com/medledger/record-custody-backend/ledger"
	"github.com/medledger/record-custody-backend/storage"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Store(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(interfaces.ContentID), args.Error(1)
}

func (m *mockStorage) Fetch(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockStorage) Available(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *mockStorage) Name() string        { return "mock" }
func (m *mockStorage) LocationURI() string { return "mock://" }

type mockKMS struct {
	mock.Mock
}

func (m *mockKMS) OwnerPublicKey(owner interfaces.Identity) ([]byte, error) {
	args := m.Called(owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKMS) UnwrapCustodyKey(owner interfaces.Identity, wrapped []byte) ([]byte, error) {
	args := m.Called(owner, wrapped)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity(b byte) interfaces.Identity {
	var id interfaces.Identity
	id[19] = b
	return id
}

// Full custody stack backed by the in-memory ledger and a file store.
func newTestCoordinator(t *testing.T) (*Coordinator, *ledger.MemLedger) {
	t.Helper()

	memLedger := ledger.NewMemLedger()

	fileBackend, err := storage.NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	custodyKMS, err := kms.NewSimpleKMS(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	return New(memLedger, fileBackend, custodyKMS, discardLogger()), memLedger
}

func TestCreateAndReadByOwner(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := testIdentity(0x01)
	payload := []byte(`{"diagnosis":"healthy","visit":"2026-01-12"}`)

	result, err := coord.Create(ctx, owner, payload, "lab-result")
	require.NoError(t, err)
	assert.NotEmpty(t, result.RecordID)
	assert.False(t, result.ContentID.IsZero())
	assert.NotEmpty(t, result.Receipt.TxHash)

	record, err := coord.Read(ctx, result.RecordID, owner)
	require.NoError(t, err)
	assert.Equal(t, payload, record.Data)
	assert.Equal(t, owner, record.Meta.Owner)
	assert.Equal(t, "lab-result", record.Meta.RecordType)

	summaries, err := coord.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, result.RecordID, summaries[0].RecordID)
	assert.Equal(t, result.ContentID, summaries[0].ContentID)
}

func TestGrantEnablesRead(t *testing.T) {
	coord, memLedger := newTestCoordinator(t)
	ctx := context.Background()
	owner := testIdentity(0x01)
	doctor := testIdentity(0x02)
	payload := []byte("blood panel results")

	result, err := coord.Create(ctx, owner, payload, "lab-result")
	require.NoError(t, err)

	// No grant yet.
	_, err = coord.Read(ctx, result.RecordID, doctor)
	assert.ErrorIs(t, err, interfaces.ErrAccessDenied)

	_, err = memLedger.GrantAccess(ctx, result.RecordID, doctor, time.Now().Add(time.Hour), owner)
	require.NoError(t, err)

	record, err := coord.Read(ctx, result.RecordID, doctor)
	require.NoError(t, err)
	assert.Equal(t, payload, record.Data)
}

func TestExpiredGrantDenied(t *testing.T) {
	coord, memLedger := newTestCoordinator(t)
	ctx := context.Background()
	owner := testIdentity(0x01)
	doctor := testIdentity(0x02)

	result, err := coord.Create(ctx, owner, []byte("x-ray report"), "imaging")
	require.NoError(t, err)

	_, err = memLedger.GrantAccess(ctx, result.RecordID, doctor, time.Now().Add(-time.Hour), owner)
	require.NoError(t, err)

	_, err = coord.Read(ctx, result.RecordID, doctor)
	assert.ErrorIs(t, err, interfaces.ErrAccessDenied)
}

func TestDeniedReadTouchesNothing(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	store := new(mockStorage)
	keyService := new(mockKMS)
	coord := New(mockLedger, store, keyService, discardLogger())

	recordID := interfaces.RecordID("rec-1")
	caller := testIdentity(0x09)

	mockLedger.On("CheckAccess", mock.Anything, recordID, caller).Return(false, nil).Once()

	_, err := coord.Read(context.Background(), recordID, caller)
	assert.ErrorIs(t, err, interfaces.ErrAccessDenied)

	mockLedger.AssertExpectations(t)
	mockLedger.AssertNotCalled(t, "RecordMeta", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	keyService.AssertNotCalled(t, "UnwrapCustodyKey", mock.Anything, mock.Anything)
}

func TestReadInactiveRecord(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := testIdentity(0x01)

	result, err := coord.Create(ctx, owner, []byte("superseded note"), "note")
	require.NoError(t, err)

	require.NoError(t, coord.Revoke(ctx, result.RecordID, owner))

	_, err = coord.Read(ctx, result.RecordID, owner)
	assert.ErrorIs(t, err, interfaces.ErrRecordInactive)
}

func TestReadUnknownRecordDenied(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	// Existence is not revealed to unauthorized callers.
	_, err := coord.Read(context.Background(), "no-such-record", testIdentity(0x01))
	assert.ErrorIs(t, err, interfaces.ErrAccessDenied)
}

func TestListFiltersInactive(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := testIdentity(0x01)

	first, err := coord.Create(ctx, owner, []byte("visit one"), "note")
	require.NoError(t, err)
	second, err := coord.Create(ctx, owner, []byte("visit two"), "note")
	require.NoError(t, err)

	require.NoError(t, coord.Revoke(ctx, first.RecordID, owner))

	summaries, err := coord.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, second.RecordID, summaries[0].RecordID)
}

func TestRevokeByNonOwner(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := testIdentity(0x01)

	result, err := coord.Create(ctx, owner, []byte("private"), "note")
	require.NoError(t, err)

	err = coord.Revoke(ctx, result.RecordID, testIdentity(0x02))
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	// Still readable by the owner.
	_, err = coord.Read(ctx, result.RecordID, owner)
	assert.NoError(t, err)
}

func TestCreateAbortsOnStoreFailure(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	store := new(mockStorage)
	keyService := new(mockKMS)
	coord := New(mockLedger, store, keyService, discardLogger())

	store.On("Store", mock.Anything, mock.Anything).
		Return(interfaces.ContentID{}, interfaces.ErrStoreUnavailable).Once()

	_, err := coord.Create(context.Background(), testIdentity(0x01), []byte("data"), "note")
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)

	// Nothing anchored after a failed store.
	mockLedger.AssertNotCalled(t, "AnchorRecord",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestCreateAbortsOnAnchorRejection(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	store := new(mockStorage)
	custodyKMS, err := kms.NewSimpleKMS(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	coord := New(mockLedger, store, custodyKMS, discardLogger())

	owner := testIdentity(0x01)
	store.On("Store", mock.Anything, mock.Anything).
		Return(interfaces.ComputeContentID([]byte("sealed")), nil).Once()
	mockLedger.On("AnchorRecord",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, "note", owner).
		Return(interfaces.Receipt{}, interfaces.ErrLedgerRejected).Once()

	_, err = coord.Create(context.Background(), owner, []byte("data"), "note")
	assert.ErrorIs(t, err, interfaces.ErrLedgerRejected)
	mockLedger.AssertExpectations(t)
}

func TestFreshKeyPerRecord(t *testing.T) {
	coord, memLedger := newTestCoordinator(t)
	ctx := context.Background()
	owner := testIdentity(0x01)
	payload := []byte("identical payload")

	first, err := coord.Create(ctx, owner, payload, "note")
	require.NoError(t, err)
	second, err := coord.Create(ctx, owner, payload, "note")
	require.NoError(t, err)

	// Fresh key and nonce per record, so identical payloads seal to
	// different ciphertexts and distinct content IDs.
	assert.NotEqual(t, first.ContentID, second.ContentID)

	firstMeta, err := memLedger.RecordMeta(ctx, first.RecordID)
	require.NoError(t, err)
	secondMeta, err := memLedger.RecordMeta(ctx, second.RecordID)
	require.NoError(t, err)
	assert.NotEqual(t, firstMeta.CustodyKeyBlob, secondMeta.CustodyKeyBlob)
}
