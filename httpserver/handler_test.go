package httpserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/record-custody-backend/access"
	"github.com/medledger/record-custody-backend/coordinator"
	"github.com/medledger/record-custody-backend/interfaces"
	"github.com/medledger/record-custody-backend/kms"
	"github.com/medledger/record-custody-backend/ledger"
	"github.com/medledger/record-custody-backend/storage"
)

const (
	ownerAddr  = "0x1000000000000000000000000000000000000001"
	doctorAddr = "0x2000000000000000000000000000000000000002"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	memLedger := ledger.NewMemLedger()

	fileBackend, err := storage.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)

	custodyKMS, err := kms.NewSimpleKMS(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	handler := NewHandler(
		coordinator.New(memLedger, fileBackend, custodyKMS, log),
		access.NewWorkflow(memLedger, log),
		log,
	)

	srv := &Server{
		cfg:     &HTTPServerConfig{Log: log},
		log:     log,
		handler: handler,
	}
	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, identity string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if identity != "" {
		req.Header.Set(IdentityHeader, identity)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var fields map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	return resp, fields
}

func createRecord(t *testing.T, ts *httptest.Server, identity, data, recordType string) string {
	t.Helper()

	resp, fields := doRequest(t, ts, http.MethodPost, "/api/records", identity, map[string]string{
		"recordData": data,
		"recordType": recordType,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recordID string
	require.NoError(t, json.Unmarshal(fields["recordId"], &recordID))
	require.NotEmpty(t, recordID)
	return recordID
}

func TestCreateAndGetRecord(t *testing.T) {
	ts := testServer(t)
	payload := `{"diagnosis":"healthy"}`

	recordID := createRecord(t, ts, ownerAddr, payload, "lab-result")

	resp, fields := doRequest(t, ts, http.MethodGet, "/api/records/"+recordID, ownerAddr, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var record recordBody
	require.NoError(t, json.Unmarshal(fields["record"], &record))
	assert.Equal(t, recordID, record.RecordID)
	assert.Equal(t, "lab-result", record.RecordType)
	assert.Equal(t, ownerAddr, record.Owner)

	data, err := base64.StdEncoding.DecodeString(record.Data)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestGetRecordDenied(t *testing.T) {
	ts := testServer(t)
	recordID := createRecord(t, ts, ownerAddr, "confidential", "note")

	resp, _ := doRequest(t, ts, http.MethodGet, "/api/records/"+recordID, doctorAddr, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGrantThenRead(t *testing.T) {
	ts := testServer(t)
	recordID := createRecord(t, ts, ownerAddr, "blood panel", "lab-result")

	resp, _ := doRequest(t, ts, http.MethodPost, "/api/access/grant", ownerAddr, map[string]any{
		"recordId":       recordID,
		"granteeAddress": doctorAddr,
		"expiry":         time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields := doRequest(t, ts, http.MethodGet, "/api/records/"+recordID, doctorAddr, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var record recordBody
	require.NoError(t, json.Unmarshal(fields["record"], &record))
	data, err := base64.StdEncoding.DecodeString(record.Data)
	require.NoError(t, err)
	assert.Equal(t, "blood panel", string(data))
}

func TestGrantByNonOwner(t *testing.T) {
	ts := testServer(t)
	recordID := createRecord(t, ts, ownerAddr, "private", "note")

	resp, _ := doRequest(t, ts, http.MethodPost, "/api/access/grant", doctorAddr, map[string]any{
		"recordId":       recordID,
		"granteeAddress": doctorAddr,
		"expiry":         time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRevokedRecordGone(t *testing.T) {
	ts := testServer(t)
	recordID := createRecord(t, ts, ownerAddr, "old note", "note")

	resp, _ := doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/records/%s/revoke", recordID), ownerAddr, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodGet, "/api/records/"+recordID, ownerAddr, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestListRecords(t *testing.T) {
	ts := testServer(t)
	first := createRecord(t, ts, ownerAddr, "visit one", "note")
	second := createRecord(t, ts, ownerAddr, "visit two", "note")

	resp, _ := doRequest(t, ts, http.MethodPost, fmt.Sprintf("/api/records/%s/revoke", first), ownerAddr, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, fields := doRequest(t, ts, http.MethodGet, "/api/patient/records", ownerAddr, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var records []interfaces.RecordSummary
	require.NoError(t, json.Unmarshal(fields["records"], &records))
	require.Len(t, records, 1)
	assert.Equal(t, interfaces.RecordID(second), records[0].RecordID)
}

func TestRequestAccess(t *testing.T) {
	ts := testServer(t)
	recordID := createRecord(t, ts, ownerAddr, "imaging", "x-ray")

	resp, fields := doRequest(t, ts, http.MethodPost, "/api/access/request", doctorAddr, map[string]string{
		"recordId": recordID,
		"purpose":  "follow-up consult",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var requestID string
	require.NoError(t, json.Unmarshal(fields["requestId"], &requestID))
	assert.NotEmpty(t, requestID)

	// A request alone grants nothing.
	resp, _ = doRequest(t, ts, http.MethodGet, "/api/records/"+recordID, doctorAddr, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIdentityHeaderRequired(t *testing.T) {
	ts := testServer(t)

	resp, _ := doRequest(t, ts, http.MethodGet, "/api/patient/records", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, ts, http.MethodGet, "/api/patient/records", "not-an-address", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateRecordValidation(t *testing.T) {
	ts := testServer(t)

	resp, _ := doRequest(t, ts, http.MethodPost, "/api/records", ownerAddr, map[string]string{
		"recordType": "note",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &Server{
		cfg: &HTTPServerConfig{Log: log, DrainDuration: time.Millisecond},
		log: log,
		handler: NewHandler(
			coordinator.New(ledger.NewMemLedger(), nil, nil, log),
			access.NewWorkflow(ledger.NewMemLedger(), log),
			log,
		),
	}
	srv.isReady.Store(true)
	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/drain")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/undrain")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
