package ledger

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/medledger/record-custody-backend/interfaces"
)

// MockLedger mocks the interfaces.Ledger interface for interaction tests.
type MockLedger struct {
	mock.Mock
}

// AnchorRecord mocks the AnchorRecord method
func (m *MockLedger) AnchorRecord(ctx context.Context, recordID interfaces.RecordID, contentID interfaces.ContentID, custodyKeyBlob []byte, recordType string, owner interfaces.Identity) (interfaces.Receipt, error) {
	args := m.Called(ctx, recordID, contentID, custodyKeyBlob, recordType, owner)
	return args.Get(0).(interfaces.Receipt), args.Error(1)
}

// RevokeRecord mocks the RevokeRecord method
func (m *MockLedger) RevokeRecord(ctx context.Context, recordID interfaces.RecordID, owner interfaces.Identity) (interfaces.Receipt, error) {
	args := m.Called(ctx, recordID, owner)
	return args.Get(0).(interfaces.Receipt), args.Error(1)
}

// CheckAccess mocks the CheckAccess method
func (m *MockLedger) CheckAccess(ctx context.Context, recordID interfaces.RecordID, caller interfaces.Identity) (bool, error) {
	args := m.Called(ctx, recordID, caller)
	return args.Bool(0), args.Error(1)
}

// RecordMeta mocks the RecordMeta method
func (m *MockLedger) RecordMeta(ctx context.Context, recordID interfaces.RecordID) (interfaces.RecordMeta, error) {
	args := m.Called(ctx, recordID)
	return args.Get(0).(interfaces.RecordMeta), args.Error(1)
}

// PatientRecords mocks the PatientRecords method
func (m *MockLedger) PatientRecords(ctx context.Context, owner interfaces.Identity) ([]interfaces.RecordID, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.RecordID), args.Error(1)
}

// FileAccessRequest mocks the FileAccessRequest method
func (m *MockLedger) FileAccessRequest(ctx context.Context, requestID interfaces.RequestID, recordID interfaces.RecordID, purpose string, requester interfaces.Identity) error {
	args := m.Called(ctx, requestID, recordID, purpose, requester)
	return args.Error(0)
}

// GrantAccess mocks the GrantAccess method
func (m *MockLedger) GrantAccess(ctx context.Context, recordID interfaces.RecordID, grantee interfaces.Identity, expiry time.Time, grantor interfaces.Identity) (interfaces.Receipt, error) {
	args := m.Called(ctx, recordID, grantee, expiry, grantor)
	return args.Get(0).(interfaces.Receipt), args.Error(1)
}
