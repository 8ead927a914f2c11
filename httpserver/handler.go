package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medledger/record-custody-backend/access"
	"github.com/medledger/record-custody-backend/coordinator"
	"github.com/medledger/record-custody-backend/cryptoutils"
	"github.com/medledger/record-custody-backend/interfaces"
)

const (
	// IdentityHeader carries the caller's ledger address. Set by the
	// authenticating reverse proxy in front of this service.
	IdentityHeader = "X-Identity-Address"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// Handler processes the record custody API requests. It delegates flow
// logic to the coordinator and access workflow and only deals with HTTP
// framing here.
type Handler struct {
	coordinator *coordinator.Coordinator
	access      *access.Workflow
	log         *slog.Logger
}

// NewHandler creates an HTTP request handler with the given dependencies.
func NewHandler(coord *coordinator.Coordinator, workflow *access.Workflow, log *slog.Logger) *Handler {
	return &Handler{
		coordinator: coord,
		access:      workflow,
		log:         log,
	}
}

type createRecordRequest struct {
	RecordData string `json:"recordData"`
	RecordType string `json:"recordType"`

	// Encoding is "base64" for binary payloads; empty means RecordData
	// is the literal payload.
	Encoding string `json:"encoding,omitempty"`
}

type createRecordResponse struct {
	Success   bool   `json:"success"`
	RecordID  string `json:"recordId"`
	ContentID string `json:"contentId"`
	TxHash    string `json:"txHash"`
}

type recordResponse struct {
	Success bool       `json:"success"`
	Record  recordBody `json:"record"`
}

type recordBody struct {
	RecordID   string    `json:"recordId"`
	RecordType string    `json:"recordType"`
	ContentID  string    `json:"contentId"`
	Owner      string    `json:"owner"`
	CreatedAt  time.Time `json:"timestamp"`
	Data       string    `json:"data"`
}

type listRecordsResponse struct {
	Success bool                       `json:"success"`
	Records []interfaces.RecordSummary `json:"records"`
}

type accessRequestRequest struct {
	RecordID string `json:"recordId"`
	Purpose  string `json:"purpose"`
}

type accessRequestResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId"`
}

type grantAccessRequest struct {
	RecordID       string    `json:"recordId"`
	GranteeAddress string    `json:"granteeAddress"`
	Expiry         time.Time `json:"expiry"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleCreateRecord seals and anchors a new record for the caller.
//
// Endpoint: POST /api/records
// Body: {"recordData": "<base64 or raw string>", "recordType": "<kind>"}
func (h *Handler) HandleCreateRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	var req createRecordRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.RecordData == "" || req.RecordType == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("recordData and recordType are required"))
		return
	}

	payload := []byte(req.RecordData)
	if req.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(req.RecordData)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, errors.New("recordData is not valid base64"))
			return
		}
		payload = decoded
	}

	result, err := h.coordinator.Create(r.Context(), caller, payload, req.RecordType)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, createRecordResponse{
		Success:   true,
		RecordID:  result.RecordID.String(),
		ContentID: result.ContentID.String(),
		TxHash:    result.Receipt.TxHash,
	})
}

// HandleGetRecord returns a decrypted record to an authorized caller.
//
// Endpoint: GET /api/records/{recordId}
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	recordID := interfaces.RecordID(chi.URLParam(r, "recordId"))
	if recordID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing record id"))
		return
	}

	record, err := h.coordinator.Read(r.Context(), recordID, caller)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, recordResponse{
		Success: true,
		Record: recordBody{
			RecordID:   record.Meta.RecordID.String(),
			RecordType: record.Meta.RecordType,
			ContentID:  record.Meta.ContentID.String(),
			Owner:      record.Meta.Owner.String(),
			CreatedAt:  record.Meta.CreatedAt,
			Data:       base64.StdEncoding.EncodeToString(record.Data),
		},
	})
}

// HandleListRecords returns metadata summaries for the caller's active
// records. Payloads are never included.
//
// Endpoint: GET /api/patient/records
func (h *Handler) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	summaries, err := h.coordinator.List(r.Context(), caller)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, listRecordsResponse{Success: true, Records: summaries})
}

// HandleRequestAccess files a durable access request for the record owner
// to act on. Idempotent at the ledger.
//
// Endpoint: POST /api/access/request
// Body: {"recordId": "<id>", "purpose": "<free text>"}
func (h *Handler) HandleRequestAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	var req accessRequestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.RecordID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("recordId is required"))
		return
	}

	requestID, err := h.access.RequestAccess(r.Context(), interfaces.RecordID(req.RecordID), caller, req.Purpose)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, accessRequestResponse{Success: true, RequestID: requestID.String()})
}

// HandleGrantAccess records a time-bounded read grant. Owner only.
//
// Endpoint: POST /api/access/grant
// Body: {"recordId": "<id>", "granteeAddress": "<0x hex>", "expiry": "<RFC 3339>"}
func (h *Handler) HandleGrantAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	var req grantAccessRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.RecordID == "" || req.GranteeAddress == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("recordId and granteeAddress are required"))
		return
	}
	if req.Expiry.IsZero() {
		h.writeError(w, http.StatusBadRequest, errors.New("expiry is required"))
		return
	}

	grantee, err := interfaces.NewIdentityFromHex(req.GranteeAddress)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.access.GrantAccess(r.Context(), interfaces.RecordID(req.RecordID), grantee, req.Expiry, caller); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "access granted"})
}

// HandleRevokeRecord marks a record inactive. Owner only.
//
// Endpoint: POST /api/records/{recordId}/revoke
func (h *Handler) HandleRevokeRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	recordID := interfaces.RecordID(chi.URLParam(r, "recordId"))
	if recordID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing record id"))
		return
	}

	if err := h.coordinator.Revoke(r.Context(), recordID, caller); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "record revoked"})
}

// callerIdentity resolves the caller's ledger address from the identity
// header. Writes a 401 and returns false when the header is missing or
// malformed.
func (h *Handler) callerIdentity(w http.ResponseWriter, r *http.Request) (interfaces.Identity, bool) {
	raw := r.Header.Get(IdentityHeader)
	if raw == "" {
		h.writeError(w, http.StatusUnauthorized, errors.New("missing identity header"))
		return interfaces.Identity{}, false
	}

	caller, err := interfaces.NewIdentityFromHex(raw)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return interfaces.Identity{}, false
	}
	return caller, true
}

// writeDomainError maps domain errors onto HTTP statuses. Collapsing all
// of these into a blanket 500 would hide "not found" vs "not allowed" vs
// "inactive" from clients.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrAccessDenied), errors.Is(err, interfaces.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrRecordUnknown), errors.Is(err, interfaces.ErrContentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrRecordInactive):
		status = http.StatusGone
	case errors.Is(err, interfaces.ErrLedgerRejected):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrLedgerUnavailable), errors.Is(err, interfaces.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, cryptoutils.ErrDecryptionFailure):
		h.log.Error("Unrecoverable decryption failure", "err", err)
	}

	h.writeError(w, status, err)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, statusResponse{Success: false, Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
